package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cuidarte/crm/app/controllers"
	"github.com/cuidarte/crm/app/repository"
	"github.com/cuidarte/crm/internal/pkg/cache"
	"github.com/cuidarte/crm/internal/pkg/constants"
	"github.com/cuidarte/crm/internal/pkg/database"
	"github.com/cuidarte/crm/internal/pkg/env"
	"github.com/cuidarte/crm/internal/pkg/filestore"
	"github.com/cuidarte/crm/internal/pkg/invoices"
	"github.com/cuidarte/crm/internal/pkg/middleware"
	"github.com/cuidarte/crm/internal/pkg/renewals"
	"github.com/cuidarte/crm/internal/pkg/router"
	"github.com/cuidarte/crm/internal/pkg/settlement"
)

func main() {
	app := NewApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("[Server] shutting down")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Errorf("[Server] shutdown: %v", err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/crm to project root
		"../../../", // Fallback
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		AppName:     "crm",
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
		BodyLimit:   20 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(middleware.RequestTimeout(env.GetDuration("REQUEST_TIMEOUT", 30*time.Second)))

	// fiber metrics
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: constants.DocsRoute,
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	router.InstallRouter(app, newAPIController())
	return app
}

func newAPIController() *controllers.APIController {
	db := database.GetDB()
	repos := repository.GetGlobalRepositories()
	files := newFileStore()

	return controllers.NewAPIController(
		repos,
		invoices.NewServiceFromDB(db, files),
		settlement.NewServiceFromDB(db, cache.NewLocker(cache.GetClient())),
		renewals.NewEditor(repos.Client, files),
	)
}

// fileStore is what invoices and the renewal editor need from the object store.
type fileStore interface {
	invoices.Uploader
	renewals.Uploader
}

func newFileStore() fileStore {
	cfg, err := filestore.LoadConfig()
	if err != nil {
		if env.IsDev() {
			log.Warnf("[FileStore] uploads disabled: %v", err)
			return filestore.Disabled{}
		}
		log.Fatalf("[FileStore] %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := filestore.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("[FileStore] %v", err)
	}
	return client
}
