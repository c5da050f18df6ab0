// Package profiling starts optional pprof and Pyroscope profiling, both
// switched on through the environment.
package profiling

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/yari4ek89/siverbotv2/internal/logger"
)

const (
	defaultPprofPort    = "6060"
	defaultPyroscopeURL = "http://pyroscope:4040"
	defaultEnvironment  = "development"
	pprofHeaderTimeout  = 5 * time.Second
	applicationPrefix   = "siverbot."
)

// Settings are read from the environment.
type Settings struct {
	PprofEnabled      bool
	PprofPort         string
	PyroscopeEnabled  bool
	PyroscopeURL      string
	Environment       string
	Version           string
	ApplicationSuffix string
}

// FromEnv reads ENABLE_PROFILING, PPROF_PORT, ENABLE_CONTINUOUS_PROFILING,
// PYROSCOPE_SERVER_URL, PYROSCOPE_ENVIRONMENT and APP_VERSION.
func FromEnv(service, version string) Settings {
	return Settings{
		PprofEnabled:      os.Getenv("ENABLE_PROFILING") == "true",
		PprofPort:         envOr("PPROF_PORT", defaultPprofPort),
		PyroscopeEnabled:  os.Getenv("ENABLE_CONTINUOUS_PROFILING") == "true",
		PyroscopeURL:      envOr("PYROSCOPE_SERVER_URL", defaultPyroscopeURL),
		Environment:       envOr("PYROSCOPE_ENVIRONMENT", defaultEnvironment),
		Version:           envOr("APP_VERSION", version),
		ApplicationSuffix: service,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Profiler holds whatever was started. A nil *Profiler is valid.
type Profiler struct {
	pyroscope *pyroscope.Profiler
	pprof     *http.Server
}

// Start launches the enabled profilers. It returns nil when none are enabled.
func Start(s Settings, log logger.Logger) (*Profiler, error) {
	if !s.PprofEnabled && !s.PyroscopeEnabled {
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	p := &Profiler{}
	if s.PprofEnabled {
		p.pprof = startPprof(s.PprofPort, log)
	}

	if s.PyroscopeEnabled {
		prof, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: applicationPrefix + s.ApplicationSuffix,
			ServerAddress:   s.PyroscopeURL,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
			Tags: map[string]string{
				"environment": s.Environment,
				"version":     s.Version,
				"hostname":    hostname(),
				"go_version":  runtime.Version(),
			},
		})
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
		}
		p.pyroscope = prof
		log.Info("Pyroscope continuous profiling started",
			logger.String("application", applicationPrefix+s.ApplicationSuffix),
			logger.String("server", s.PyroscopeURL),
			logger.String("environment", s.Environment),
		)
	}
	return p, nil
}

// startPprof serves the pprof endpoints on localhost only.
func startPprof(port string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:              "localhost:" + port,
		Handler:           mux,
		ReadHeaderTimeout: pprofHeaderTimeout,
	}
	go func() {
		log.Info("Starting pprof server", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", logger.Error(err))
		}
	}()
	return srv
}

// Stop stops every started profiler.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.pprof != nil {
		errs = append(errs, p.pprof.Close())
	}
	if p.pyroscope != nil {
		errs = append(errs, p.pyroscope.Stop())
	}
	return errors.Join(errs...)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
