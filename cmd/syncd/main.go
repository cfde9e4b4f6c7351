package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/clubsync/clubsyncgo/internal/backup"
	"github.com/clubsync/clubsyncgo/internal/config"
	"github.com/clubsync/clubsyncgo/internal/database"
	"github.com/clubsync/clubsyncgo/internal/discovery"
	"github.com/clubsync/clubsyncgo/internal/handlers"
	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/pairing"
	"github.com/clubsync/clubsyncgo/internal/store"
	"github.com/clubsync/clubsyncgo/internal/syncer"
	"github.com/clubsync/clubsyncgo/internal/trust"
	"github.com/clubsync/clubsyncgo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema (Critical for Zero-Config)
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.Member{},
		&models.CheckIn{},
		&models.PracticeSession{},
		&models.ScanEvent{},
		&models.Registration{},
		&models.EquipmentItem{},
		&models.EquipmentCheckout{},
		&models.DeviceRecord{},

		// Sync tables
		&models.SyncConflict{},
		&models.TrustedPeer{},
		&models.PeerSyncState{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Device identity
	id, err := identity.LoadOrGenerate(cfg.DataDir, cfg.DeviceName, cfg.DeviceRole)
	if err != nil {
		log.Fatalf("Failed to load device identity: %v", err)
	}
	log.Printf("✅ Device %s (%s) as %s", id.DisplayName, id.ID, id.Role)

	trustStore := trust.NewStore(db.DB)
	if err := trustStore.Load(); err != nil {
		log.Fatalf("Failed to load trust store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	// 5. Join an existing network when invited via JOIN_CODE
	if !id.InNetwork() {
		if code := os.Getenv("JOIN_CODE"); code != "" {
			joinCtx, joinCancel := context.WithTimeout(ctx, 30*time.Second)
			admission, err := pairing.Join(joinCtx, code, id.ID, id.DisplayName, id.Role)
			joinCancel()
			if err != nil {
				log.Fatalf("Failed to join network: %v", err)
			}
			if err := id.AdoptNetwork(admission.NetworkID, admission.NetworkSecret, admission.AuthCredential); err != nil {
				log.Fatalf("Failed to persist network identity: %v", err)
			}
			for _, peer := range admission.TrustedPeers {
				if err := trustStore.Upsert(peer); err != nil {
					log.Printf("⚠️ Could not persist peer %s: %v", peer.DeviceID, err)
				}
			}
			log.Printf("✅ Joined network %s with %d peer(s)", admission.NetworkID, len(admission.TrustedPeers))
		} else {
			log.Printf("⚠️ Device has no network; waiting for a JOIN_CODE or pairing by a master")
		}
	}

	// 6. Sync core
	st := store.NewGormStore(db.DB)
	ledger := syncer.NewLedger(st, id, hub)
	engine := syncer.NewEngine(st, ledger, id)

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Fatalf("Invalid PORT %q: %v", cfg.Port, err)
	}
	endpoint := fmt.Sprintf("http://%s:%d", localIPv4(), port)
	issuer := pairing.NewIssuer(id, trustStore, endpoint, hub)

	if err := publishOwnDeviceRecord(ctx, st, id); err != nil {
		log.Printf("⚠️ Could not publish device record: %v", err)
	}

	// 7. Discovery
	registry := discovery.NewRegistry()
	disc := discovery.NewService(id, registry, hub)
	if cfg.Advertise {
		if err := disc.Advertise(port); err != nil {
			log.Printf("⚠️ Discovery advertise failed: %v", err)
		}
	}
	sightings, err := disc.Discover(ctx)
	if err != nil {
		log.Printf("⚠️ Discovery browse failed: %v", err)
	} else {
		go func() {
			for s := range sightings {
				if !s.Removed {
					trustStore.TouchSeen(s.DeviceID, s.LastSeen)
				}
			}
		}()
	}

	// 8. Sync driver
	driver := syncer.NewDriver(engine, ledger, st, trustStore, registry, id, cfg.SyncInterval, hub)
	go driver.Run(ctx)

	backupMgr := backup.NewManager(db.DB, filepath.Join(cfg.DataDir, "backups"), id.ID)

	// 9. HTTP surface
	router := handlers.NewRouter(handlers.Deps{
		Identity:        id,
		Store:           st,
		Trust:           trustStore,
		Registry:        registry,
		Issuer:          issuer,
		Engine:          engine,
		Ledger:          ledger,
		Driver:          driver,
		Hub:             hub,
		Backup:          backupMgr,
		OperatorPINHash: cfg.OperatorPINHash,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("🚀 Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 10. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("🛑 Shutting down...")
	cancel()
	disc.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server shutdown: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("⚠️ Database close: %v", err)
	}
	log.Println("✅ Stopped")
}

// publishOwnDeviceRecord upserts this device into the replicated device
// table so peers learn about it through sync, not only through mDNS
func publishOwnDeviceRecord(ctx context.Context, st store.Store, id *identity.Identity) error {
	now := time.Now()
	rec, err := st.DeviceRecord(ctx, id.ID)
	if err == store.ErrNotFound {
		rec = &models.DeviceRecord{ID: id.ID}
		rec.CreatedAt = now
	} else if err != nil {
		return err
	}
	rec.DisplayName = id.DisplayName
	rec.Role = id.Role
	rec.SchemaVersion = models.SchemaVersion
	rec.LastSeenAt = now
	rec.Touch(id.ID, id.Role, now)
	return st.SaveDeviceRecord(ctx, rec)
}

// localIPv4 picks the first non-loopback IPv4 address for the pairing
// endpoint embedded in QR credentials
func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if v4 := ipnet.IP.To4(); v4 != nil {
					return v4.String()
				}
			}
		}
	}
	return "127.0.0.1"
}
