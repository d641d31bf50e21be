package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"cart-hand/browser"
	"cart-hand/config"
	"cart-hand/models"
	"cart-hand/services"
	"cart-hand/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var newProductsCounter prometheus.Counter

func init() {
	newProductsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "new_products_added_total",
			Help: "Total number of new products added to the database.",
		},
	)
	prometheus.MustRegister(newProductsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to products database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Product{}, &models.SearchKeyword{}, &models.ScrapeRun{})

	seedDefaultKeywords(db, logging)

	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}

	sessions := browser.NewLauncher(cfg, logging)
	scrapeService := services.NewScrapeService(cfg, db, s3Client, logging, sessions)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupProductRoutes(router, db, logging)
	setupKeywordRoutes(router, db, logging)
	setupScrapeRoutes(router, scrapeService)
	setupRunRoutes(router, db, logging)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled scrape job...")
		count, err := scrapeService.RunAllKeywords(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("new_products", count))
			newProductsCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupProductRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/products")

	// Einfacher GET-Endpunkt, um alle Produkte abzurufen (ohne Filter)
	rg.GET("/", func(c *gin.Context) {
		var products []models.Product
		if err := db.Find(&products).Error; err != nil {
			log.Error("Database query for all products failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, products)
	})

	// Body-gesteuerter Endpunkt für komplexe Abfragen
	rg.POST("/query", func(c *gin.Context) {
		type ProductQuery struct {
			Keyword      string   `json:"keyword"`
			Source       string   `json:"source"`
			NameContains string   `json:"name_contains"`
			Availability string   `json:"availability"`
			MaxPrice     *float64 `json:"max_price"`
			Limit        int      `json:"limit"`
		}

		var req ProductQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Product{})

		if req.Keyword != "" {
			query = query.Where("keyword = ?", req.Keyword)
		}
		if req.Source != "" {
			query = query.Where("source = ?", req.Source)
		}
		if req.NameContains != "" {
			query = query.Where("name ILIKE ?", "%"+req.NameContains+"%")
		}
		if req.Availability != "" {
			query = query.Where("availability = ?", req.Availability)
		}
		if req.MaxPrice != nil {
			query = query.Where("price <= ?", *req.MaxPrice)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var products []models.Product
		if err := query.Order("created_at desc").Find(&products).Error; err != nil {
			log.Error("Database query for products failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, products)
	})
}

func setupKeywordRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/keywords")
	rg.POST("/", func(c *gin.Context) {
		var kw models.SearchKeyword
		if err := c.ShouldBindJSON(&kw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(kw.Keyword) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "keyword must not be empty"})
			return
		}
		if err := db.Create(&kw).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create keyword"})
			return
		}
		c.JSON(http.StatusCreated, kw)
	})
	rg.GET("/", func(c *gin.Context) {
		var kws []models.SearchKeyword
		if err := db.Find(&kws).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, kws)
	})
	rg.DELETE("/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := db.Delete(&models.SearchKeyword{}, id).Error; err != nil {
			log.Error("Failed to delete keyword", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete keyword"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

func setupScrapeRoutes(router *gin.Engine, scrapeService *services.ScrapeService) {
	rg := router.Group("/scrape")

	// Einzelner Lauf: keyword ODER komplette url, optional target/lat/lon.
	rg.POST("/", func(c *gin.Context) {
		var req services.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.Keyword == "" && req.URLOverride == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "keyword or url required"})
			return
		}

		go func() {
			count, err := scrapeService.Run(context.Background(), req)
			if err != nil {
				scrapeService.Logger.Error("Async scrape failed", zap.Error(err))
			} else {
				newProductsCounter.Add(float64(count))
				scrapeService.Logger.Info("Async scrape completed", zap.Int("new_products", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Scrape triggered."})
	})

	rg.POST("/all", func(c *gin.Context) {
		go func() {
			count, err := scrapeService.RunAllKeywords(context.Background())
			if err != nil {
				scrapeService.Logger.Error("Async all-keyword scrape failed", zap.Error(err))
			} else {
				newProductsCounter.Add(float64(count))
				scrapeService.Logger.Info("Async all-keyword scrape completed", zap.Int("total_new_products", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Scrape for all keywords triggered."})
	})

	rg.POST("/keyword/:id", func(c *gin.Context) {
		id := c.Param("id")
		var kw models.SearchKeyword
		if err := scrapeService.DB.First(&kw, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "keyword not found"})
			return
		}

		go func() {
			count, err := scrapeService.Run(context.Background(), services.ScrapeRequest{
				Keyword: kw.Keyword,
				Target:  kw.Target,
			})
			if err != nil {
				scrapeService.Logger.Error("Async single scrape failed", zap.Error(err))
			} else {
				newProductsCounter.Add(float64(count))
				scrapeService.Logger.Info("Async single scrape completed",
					zap.Int("new_products", count), zap.String("keyword", kw.Keyword))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Scrape for keyword " + kw.Keyword + " triggered."})
	})
}

func setupRunRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/runs")

	rg.GET("/", func(c *gin.Context) {
		var runs []models.ScrapeRun
		query := db.Order("created_at desc").Limit(100)
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if err := query.Find(&runs).Error; err != nil {
			log.Error("Database query for runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var run models.ScrapeRun
		if err := db.First(&run, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			log.Error("Database error while fetching run", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, run)
	})
}

func seedDefaultKeywords(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.SearchKeyword{}).Count(&count)
	if count > 0 {
		return
	}
	keywords := []models.SearchKeyword{
		{Keyword: "milk"},
		{Keyword: "bread"},
		{Keyword: "eggs"},
	}
	if err := db.Create(&keywords).Error; err != nil {
		logger.Warn("Failed to seed default keywords", zap.Error(err))
	} else {
		logger.Info("Default keywords seeded.")
	}
}
