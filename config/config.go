package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type HTTP struct {
	Addr string `default:":8080" envconfig:"ADDR"`
}

type Redis struct {
	Addr     string `default:"localhost:6379" envconfig:"ADDR"`
	PoolSize int    `default:"100" envconfig:"POOL_SIZE"`
}

type MySQL struct {
	DSN          string `default:"root:root@tcp(localhost:3306)/flashstock?parseTime=true" envconfig:"DSN"`
	MaxOpenConns int    `default:"50" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `default:"25" envconfig:"MAX_IDLE_CONNS"`
}

type Sale struct {
	ProductID    string `default:"iphone-15" envconfig:"PRODUCT_ID"`
	InitialStock int    `default:"100" envconfig:"INITIAL_STOCK"`
}

type RateLimit struct {
	Limit  int64         `default:"50" envconfig:"LIMIT"`
	Window time.Duration `default:"1m" envconfig:"WINDOW"`
}

type Reservation struct {
	TTL           time.Duration `default:"15m" envconfig:"TTL"`
	SweepInterval time.Duration `default:"30s" envconfig:"SWEEP_INTERVAL"`
}

type Config struct {
	Prod        bool `default:"false" envconfig:"PROD"`
	Workers     int  `default:"10" envconfig:"WORKERS"`
	QueueSize   int  `default:"10000" envconfig:"QUEUE_SIZE"`
	HTTP        HTTP
	Redis       Redis
	MySQL       MySQL
	Sale        Sale
	RateLimit   RateLimit
	Reservation Reservation
}

func Load() (Config, error) {
	var c Config

	if err := envconfig.Process("FLASHSTOCK", &c); err != nil {
		return Config{}, err
	}

	return c, nil
}
