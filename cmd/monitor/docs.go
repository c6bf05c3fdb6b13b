package main

//go:generate swag init -g cmd/monitor/main.go -o docs

// @title           Arbtrack Monitor API
// @version         0.1.0
// @description     Cross-marketplace listing intake, drift tracking, and arbitrage opportunity detection.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
