package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/linskybing/gpulab/config"
	"github.com/linskybing/gpulab/db"
	"github.com/linskybing/gpulab/docstore"
	"github.com/linskybing/gpulab/middleware"
	"github.com/linskybing/gpulab/repositories"
	"github.com/linskybing/gpulab/routes"
)

func newStore() docstore.Store {
	switch config.StoreBackend {
	case "redis":
		log.Printf("using redis document store at %s", config.RedisAddr)
		return docstore.NewRedisStore(config.RedisAddr, config.RedisPassword, config.RedisDB)
	default:
		log.Println("using in-memory document store")
		return docstore.NewMemoryStore()
	}
}

func main() {
	config.LoadConfig()
	middleware.Init()
	db.Init()

	store := newStore()
	defer store.Close()

	repos := repositories.New(store)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	routes.RegisterRoutes(router, repos)

	port := ":" + config.ServerPort
	log.Printf("Starting API server on %s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
}
