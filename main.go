package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"tresorerie/config"
	"tresorerie/middleware"
	"tresorerie/routes"
	"tresorerie/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file")
	}

	gin.SetMode(gin.ReleaseMode)
	log.Printf("Running in %s mode", gin.Mode())

	r := gin.Default()

	middleware.InitMetrics()
	utils.InitDomainMetrics()
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/metrics", func(c *gin.Context) {
		promhttp.Handler().ServeHTTP(c.Writer, c.Request)
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("FRONTEND_ORIGIN")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	config.ConnectDatabase()
	routes.InitializeRoutes(r)

	// Delay scans run on a fixed interval. The scheduler is started exactly
	// once, here: dedup across overlapping runs and process instances is the
	// conditional claim in the scan itself, not this call.
	interval, err := strconv.Atoi(os.Getenv("DELAY_SCAN_INTERVAL_MINUTES"))
	if err != nil || interval <= 0 {
		interval = 60
	}
	s := gocron.NewScheduler(time.UTC)
	s.Every(interval).Minutes().Do(utils.RunDelayScans)
	s.StartAsync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "1414"
	}

	r.Run(":" + port)
}
