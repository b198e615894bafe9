package main

import "time"

type Config struct {
	BotName        string        `env:"BOT_NAME,default=greeter"`
	Room           string        `env:"ROOM,default=chat_room"`
	NatsURL        string        `env:"NATS_URL,default=nats://localhost:4222"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	PollInterval   time.Duration `env:"POLL_INTERVAL,default=5s"`
	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
}
