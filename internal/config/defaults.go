package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.vidbot/workspace",
			LogLevel:  "info",
		},
		Pipeline: PipelineConfig{
			BaseURL:               "http://127.0.0.1:8000",
			ClarifyTimeoutSeconds: 5,
			RequestTimeoutSeconds: 120,
			UploadMaxBytes:        512 << 20,
		},
		History: HistoryConfig{
			DBPath:     "~/.vidbot/history.db",
			Session:    "local",
			FetchLimit: 100,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Gateway: GatewayConfig{
			Enabled:      false,
			Host:         "127.0.0.1",
			Port:         8080,
			ArtifactsDir: "~/.vidbot/artifacts",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
