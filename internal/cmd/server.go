package main

import (
	"fmt"
	"net/http"
	"time"
)

func setupServer(services *Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler:           services.API.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
