package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"tilemate_backend/internal/controller"
	"tilemate_backend/internal/middleware"
	"tilemate_backend/internal/model"
	"tilemate_backend/internal/service"
	"tilemate_backend/pkg/config"
	"tilemate_backend/pkg/cron"
	"tilemate_backend/pkg/database"
	"tilemate_backend/pkg/paystack"
	"tilemate_backend/pkg/seed"
	"tilemate_backend/pkg/sms"
	"tilemate_backend/pkg/subscription"
	"tilemate_backend/pkg/utils/jwt"
)

type controllers struct {
	auth          *controller.AuthController
	payments      *controller.PaymentController
	subscriptions *controller.SubscriptionController
	projects      *controller.ProjectController
	features      *service.FeatureService
}

func setupRoutes(app *fiber.App, c controllers) {
	// Auth Routes
	auth := app.Group("/auth")
	auth.Post("/register", c.auth.Register)
	auth.Post("/login", c.auth.Login)

	app.Get("/me", middleware.AuthMiddleware(), c.auth.GetMe)

	// Payment lifecycle. The mobile client hardcodes these paths.
	app.Post("/initiate-payment", middleware.AuthMiddleware(), c.payments.InitiatePayment)
	app.Post("/verify-paystack-otp", middleware.AuthMiddleware(), c.payments.VerifyOTP)
	app.Post("/verify-payment", middleware.AuthMiddleware(), c.payments.VerifyPayment)
	app.Get("/check-payment-status/:reference", middleware.AuthMiddleware(), c.payments.CheckPaymentStatus)

	// Paystack webhook (signature-authenticated, no bearer token)
	app.Post("/paystack-webhook", c.payments.HandleWebhook)

	// Subscription routes
	subscriptions := app.Group("/subscriptions")
	subscriptions.Get("/plans", c.subscriptions.ListPlans)
	subscriptions.Get("/my", middleware.AuthMiddleware(), c.subscriptions.GetMySubscription)

	// Metered feature usage
	features := app.Group("/features", middleware.AuthMiddleware())
	features.Post("/:feature/use", c.subscriptions.UseFeature)
	features.Get("/:feature/remaining", c.subscriptions.FeatureRemaining)

	// Projects, gated by the feature counters
	projects := app.Group("/projects", middleware.AuthMiddleware())
	projects.Get("/my", c.projects.ListMyProjects)
	projects.Post("/", middleware.ConsumeFeature(c.features, subscription.FeatureProject), c.projects.CreateProject)
	projects.Post("/:id/room-photo", middleware.ConsumeFeature(c.features, subscription.FeatureThreeDView), c.projects.UploadRoomPhoto)
	projects.Post("/:id/manual-estimate", middleware.ConsumeFeature(c.features, subscription.FeatureManualEstimate), c.projects.ManualEstimate)
	projects.Delete("/:id", c.projects.DeleteProject)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	jwt.Init(cfg.JWT.Secret)

	db, err := database.InitDB(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	err = database.MigrateDatabase(db,
		&model.User{},
		&model.Plan{},
		&model.PaymentRecord{},
		&model.UserSubscription{},
		&model.Project{},
		&model.RoomPhoto{},
	)
	if err != nil {
		log.Printf("Migration warning: %v", err)
	}

	seed.SeedSubscriptionPlans(db)

	gateway, err := paystack.New(cfg.Paystack.SecretKey, cfg.Paystack.CallbackURL)
	if err != nil {
		log.Fatal("Could not initialize payment gateway: ", err)
	}

	smsService := sms.NewService(cfg.SMS.Endpoint, cfg.SMS.APIKey, cfg.SMS.Sender)
	if smsService == nil {
		log.Println("SMS_API_KEY not set, SMS notifications disabled")
	}

	activation := service.NewActivationService(db)
	payments := service.NewPaymentService(db, gateway, activation, smsService)
	features := service.NewFeatureService(db)

	cron.InitSubscriptionExpiryCron(db, smsService)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error",
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New())

	setupRoutes(app, controllers{
		auth:          controller.NewAuthController(db),
		payments:      controller.NewPaymentController(payments),
		subscriptions: controller.NewSubscriptionController(db, features),
		projects:      controller.NewProjectController(db),
		features:      features,
	})

	log.Printf("Server is running on port %s", cfg.Server.Port)
	log.Fatal(app.Listen(":" + cfg.Server.Port))
}
