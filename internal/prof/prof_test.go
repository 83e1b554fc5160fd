package prof

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"slices"
	"testing"

	"github.com/grafana/pyroscope-go"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	// nothing is validated when profiling is off
	stop, err := Start(context.Background(), Options{ServerAddress: "::bad"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
	stop()
}

func TestStart_RejectsServerAddress(t *testing.T) {
	for _, addr := range []string{
		"",
		"pyroscope:4040",
		"ftp://pyroscope:4040",
		"http://",
		"::not a url",
	} {
		t.Run(addr, func(t *testing.T) {
			stop, err := Start(context.Background(), Options{Enabled: true, AppName: "ligadeals-web", ServerAddress: addr})
			if err == nil {
				t.Fatal("accepted a server address that is not an http(s) URL")
			}
			if stop == nil {
				t.Fatal("stop is nil on error")
			}
			stop()
		})
	}
}

func TestStart_ContentionRatesSetAndRestored(t *testing.T) {
	ingest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ingest.Close()

	stop, err := Start(context.Background(), Options{
		Enabled:       true,
		AppName:       "ligadeals-web",
		ServerAddress: ingest.URL,
		Tags:          map[string]string{"component": "server"},
		Contention:    true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// a negative fraction reads the current value without changing it
	if got := runtime.SetMutexProfileFraction(-1); got != mutexFraction {
		t.Errorf("mutex fraction = %d, want %d", got, mutexFraction)
	}

	stop()
	stop()
	if got := runtime.SetMutexProfileFraction(-1); got != 0 {
		t.Errorf("mutex fraction after stop = %d, want 0", got)
	}
}

func TestProfileTypes(t *testing.T) {
	base := profileTypes(false)
	full := profileTypes(true)

	if !slices.Contains(base, pyroscope.ProfileCPU) || !slices.Contains(base, pyroscope.ProfileGoroutines) {
		t.Fatalf("base profiles = %v", base)
	}
	for _, pt := range []pyroscope.ProfileType{pyroscope.ProfileMutexDuration, pyroscope.ProfileBlockDuration} {
		if slices.Contains(base, pt) {
			t.Errorf("%s pushed without contention sampling", pt)
		}
		if !slices.Contains(full, pt) {
			t.Errorf("%s missing with contention sampling", pt)
		}
	}
}

type levelCounter struct {
	log.Logger
	infos, warns int
}

func (c *levelCounter) Info(context.Context, string, ...any) { c.infos++ }
func (c *levelCounter) Warn(context.Context, string, ...any) { c.warns++ }

func TestPyroLogger_RoutesLevels(t *testing.T) {
	lc := &levelCounter{Logger: log.Nop()}
	pl := pyroLogger{ctx: context.Background(), L: lc}

	pl.Infof("uploading %d profiles", 3)
	pl.Debugf("noise")
	pl.Errorf("upload failed: %v", "timeout")

	if lc.infos != 1 || lc.warns != 1 {
		t.Fatalf("infos=%d warns=%d, want 1/1", lc.infos, lc.warns)
	}
}
