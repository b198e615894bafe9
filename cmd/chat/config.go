package main

import "time"

type Config struct {
	Username            string        `env:"USERNAME,required=true"`
	Room                string        `env:"ROOM,default=chat_room"`
	NatsURL             string        `env:"NATS_URL,default=nats://localhost:4222"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH,required=true"`
	TypingQuietInterval time.Duration `env:"TYPING_QUIET_INTERVAL,default=1s"`
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
}
