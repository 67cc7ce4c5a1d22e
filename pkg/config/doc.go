// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with github.com/caarlos0/env tags. A .env
// file in the working directory is honoured through github.com/joho/godotenv.
// Each struct type is parsed once per process and cached, so packages may
// call Load freely.
package config
