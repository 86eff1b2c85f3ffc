package channel

// Config selects and configures a Channel binding. Supported drivers:
// "inproc" (single process, no external dependency) and "nats".
type Config struct {
	Driver  string `env:"CHANNEL_DRIVER" env-default:"inproc"`
	NATSURL string `env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
}
