package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:  "~/.memobot",
			LogLevel: "info",
		},
		Webhook: WebhookConfig{
			Port: 9090,
			Path: "/webhook/messages",
		},
		RateLimit: RateLimitConfig{
			Global: Rule{Max: 300, WindowSeconds: 60},
			Routes: map[string]Rule{
				"webhook": {Max: 120, WindowSeconds: 60},
				"ops":     {Max: 60, WindowSeconds: 60},
			},
			Identity:     Rule{Max: 30, WindowSeconds: 60},
			SweepSeconds: 60,
		},
		Storage: StorageConfig{
			DBPath: "~/.memobot/memobot.db",
		},
		MemoryStore: MemoryStoreConfig{
			TimeoutSeconds: 15,
			MaxRetries:     3,
			DegradedMode:   false,
		},
		Media: MediaConfig{
			TimeoutSeconds: 30,
		},
		Classifier: ClassifierConfig{
			SearchLimit: 5,
		},
	}
}
