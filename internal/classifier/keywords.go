package classifier

import (
	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// categoryRule is one row of the ordered category table. Rows earlier in
// categoryTable win when several match.
type categoryRule struct {
	Category domain.Category
	Label    string
	Emoji    string
	Keywords []string
}

var categoryTable = []categoryRule{
	{
		Category: domain.CategoryUAV,
		Label:    "БПЛА",
		Emoji:    "🛸",
		// "бплa" carries a Latin "a" as seen in the wild.
		Keywords: []string{"шахед", "shahed", "shah", "бпла", "бплa", "дрон", "drone", "бпл", "герань", "гербер"},
	},
	{
		Category: domain.CategoryMissile,
		Label:    "Ракетна загроза",
		Emoji:    "🚀",
		Keywords: []string{"ракет", "крылат", "крилат", "баллист", "баліст", "калібр", "калибр", "іскандер", "искандер"},
	},
	{
		Category: domain.CategoryAviation,
		Label:    "Авіаційна загроза",
		Emoji:    "✈️",
		// "kаb" mixes a Latin k with Cyrillic letters.
		Keywords: []string{"авіац", "авиац", "каб", "kаb", "бомб"},
	},
	{
		Category: domain.CategoryArtillery,
		Label:    "Обстріл",
		Emoji:    "💥",
		Keywords: []string{"обстріл", "обстрел", "артил", "артилер", "мінометн", "минометн"},
	},
	{
		Category: domain.CategoryAirDefense,
		Label:    "ППО",
		Emoji:    "🛡️",
		Keywords: []string{"ппо", "збито", "сбили", "перехоп"},
	},
}

var unknownRule = categoryRule{
	Category: domain.CategoryUnknown,
	Label:    "Оновлення",
	Emoji:    "ℹ️",
}

// builtinRegionKeywords are matched as lower-case substrings, so stems
// cover inflected forms.
var builtinRegionKeywords = map[domain.RegionID][]string{
	domain.RegionChernihiv: {
		"черніг", "черниг", "чернігівщина", "черниговщина", "ніжин", "ніж", "нежин",
		"прилук", "бахмач", "новгород-сівер", "новгород север", "сновськ", "корюків",
		"чернігівськ", "черниговск", "козелец", "козелець", "городн", "семенівк",
	},
	domain.RegionSumy: {
		"сум", "сумщина", "конотоп", "шостк", "охтир", "глух", "кролевец", "кролевець",
		"ромн", "лебедин", "білопіл", "белополь", "путивл", "буринь", "тростян",
	},
}

// Status filter vocabularies, matched as lower-case substrings.
var (
	threatWords = []string{
		"бпла", "бпл", "дрон", "шахед", "shahed",
		"ракета", "калібр", "іскандер", "крилат", "балліст",
		"авіа", "каб", "кab", "керован", "пуск", "зліт",
		"курс", "на ", "повз", "у напрямку", "пролітає",
	}

	alarmPhrases = []string{
		"повітряна тривога", "повітряної тривоги", "повітряну тривогу",
		"відбій тривоги", "відбій повітряної тривоги",
		"воздушная тревога", "отбой тревоги",
		"air raid alert", "air raid alarm",
		"тривога", "тривоги", "тривогу",
	}

	statusWords = []string{
		"відбій", "отбой", "відміна", "скасовано",
		"спокійно", "чисто", "без загроз", "загроз немає", "не фіксується",
		"оновлення", "обновление",
		"🟢", "✅", "🔵",
	}
)
