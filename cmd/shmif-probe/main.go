package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aleph-shmif/shmif/event"
	"github.com/aleph-shmif/shmif/guard"
	"github.com/aleph-shmif/shmif/internal/config"
	"github.com/aleph-shmif/shmif/rendezvous"
	"github.com/aleph-shmif/shmif/shmif"
)

func main() {
	log.Println("🔌 shmif-probe starting...")

	cfgPath := "shmif-probe.toml"
	if p := os.Getenv("SHMIF_PROBE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", cfgPath, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	flags := buildFlags(cfg.Runtime)
	if cfg.Runtime.GuardIntervalSeconds > 0 {
		guard.PollInterval = time.Duration(cfg.Runtime.GuardIntervalSeconds) * time.Second
	}

	connKey := cfg.Rendezvous.Key
	if connKey == "" {
		// No fixed key configured: present a fresh identity per run so the
		// server's accept log can tell repeated probe launches apart,
		// truncated to rendezvous.KeyLimit.
		connKey = uuid.NewString()[:rendezvous.KeyLimit]
	}

	var ep *shmif.Endpoint
	if cfg.Rendezvous.Loop {
		flags |= shmif.ConnectLoop
	}

	if be, berr := shmif.LoadBootEnv(); berr == nil && (be.ShmKey != "" || be.ConnPath != "") {
		// A parent process has already set up the boot environment (§6):
		// prefer it over the TOML rendezvous config.
		ep, err = shmif.Open(flags)
		if err != nil {
			log.Fatalf("shmif: open: %v", err)
		}
	} else {
		ep, err = shmif.Connect(cfg.Rendezvous.Prefix, connKey, flags)
		if err != nil {
			log.Fatalf("shmif: connect: %v", err)
		}
	}
	shmif.SetPrimary(true, ep)
	log.Printf("📡 acquired segment, geometry %dx%d", ep.Mapping.Page.W, ep.Mapping.Page.H)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pumpEvents(gctx, ep)
	})

	<-ctx.Done()
	log.Println("🛑 shutting down, dropping segment...")
	if err := ep.Drop(); err != nil {
		log.Printf("shmif: drop: %v", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("shmif-probe: %v", err)
	}
	log.Println("👋 shmif-probe stopped.")
}

func buildFlags(rt config.RuntimeConfig) shmif.Flags {
	var f shmif.Flags
	if rt.DisableGuard {
		f |= shmif.DisableGuard
	}
	if rt.ManualPause {
		f |= shmif.ManualPause
	}
	if rt.DontUnlink {
		f |= shmif.DontUnlink
	}
	return f
}

// pumpEvents blocks on Dequeue until the endpoint dies or ctx is cancelled,
// logging each delivered event.
func pumpEvents(ctx context.Context, ep *shmif.Endpoint) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, delivered, err := ep.Dequeue(true, false)
		if err != nil {
			if errors.Is(err, shmif.ErrDead) {
				return nil
			}
			return err
		}
		if !delivered {
			continue
		}

		if ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetExit {
			log.Println("📤 received EXIT, stopping pump")
			return nil
		}
		log.Printf("event: %s", event.EventString(&ev))
	}
}
