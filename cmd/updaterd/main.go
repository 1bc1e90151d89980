package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"

	"github.com/orbit-os/updaterd/internal/build"
	"github.com/orbit-os/updaterd/internal/config"
	"github.com/orbit-os/updaterd/internal/connectivity"
	"github.com/orbit-os/updaterd/internal/engine"
	"github.com/orbit-os/updaterd/internal/logger"
	"github.com/orbit-os/updaterd/internal/settings"
	"github.com/orbit-os/updaterd/internal/transfer"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	check := flag.Bool("check", false, "Check for an update and start downloading immediately")
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Error reading configuration: %v\n", err)
	}

	if cfg.ManifestURL == "" {
		log.Fatalln("No manifest URL configured")
	}

	stateDir := filepath.Join(xdg.ConfigHome, "updaterd")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Fatalf("Error creating state directory: %v\n", err)
	}

	if err := logger.Init(*debug, filepath.Join(stateDir, "updaterd.log")); err != nil {
		log.Fatalf("Error initializing logging: %v\n", err)
	}
	defer logger.Close()

	store, err := settings.NewStore(filepath.Join(stateDir, "settings.db"), cfg.DownloadDir)
	if err != nil {
		log.Fatalf("Error opening settings store: %v\n", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing settings store: %v\n", err)
		}
	}()

	provider := build.NewHTTPProvider(cfg.ManifestURL, cfg.BuildVersion, cfg.BuildDate)
	source := connectivity.NewPollingSource("", 0)

	eng := engine.New(cfg, provider, transfer.NewHTTPProvider(), source, store)
	eng.Attach(&logObserver{autoStart: *check, eng: eng})
	eng.Start()
	defer eng.Shutdown()

	if *check {
		eng.CheckForUpdate()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down")
}

// logObserver writes lifecycle events to the process log. It stands in for
// a UI attached over whatever IPC the host platform provides.
type logObserver struct {
	autoStart bool
	eng       *engine.Engine
}

func (l *logObserver) RestoreState(desc *build.Descriptor, flags engine.StateFlags, downloaded, total int64) {
	log.Printf("state: file=%s paused=%v finished=%v %d/%d bytes",
		desc.FileName, flags.Paused, flags.Finished, downloaded, total)
}

func (l *logObserver) OnDescriptorFetched(desc *build.Descriptor) {
	log.Printf("update available: %s version=%s size=%d", desc.FileName, desc.Version, desc.FileSize)

	if l.autoStart {
		l.eng.StartDownload()
	}
}

func (l *logObserver) OnFetchFailed() {
	log.Println("update check failed")
}

func (l *logObserver) OnNoUpdate() {
	log.Println("no updates available")
}

func (l *logObserver) OnNoConnectivity() {
	log.Println("no internet connection")
}

func (l *logObserver) OnInitialProgress(downloaded, total int64) {
	log.Printf("downloading from %d/%d bytes", downloaded, total)
}

func (l *logObserver) OnProgressBytes(text string) {
	log.Printf("progress: %s", text)
}

func (l *logObserver) OnProgressPercent(percent int) {
	log.Printf("progress: %d%%", percent)
}

func (l *logObserver) OnTransferFinished() {
	log.Println("download finished, verifying")
}

func (l *logObserver) OnVerificationResult(passed bool) {
	if passed {
		log.Println("checksum verified, update ready")
	} else {
		log.Println("checksum mismatch, artifact deleted")
	}
}
