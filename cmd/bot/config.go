package main

import "time"

type Config struct {
	BotName        string        `env:"BOT_NAME,default=bot"`
	Room           string        `env:"ROOM,default=chat_room"`
	NatsURL        string        `env:"NATS_URL,default=nats://localhost:4222"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	OllamaURL      string        `env:"OLLAMA_URL,default=http://localhost:11434/api/generate"`
	Model          string        `env:"MODEL,default=llama3.2"`
	PollInterval   time.Duration `env:"POLL_INTERVAL,default=5s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
}
