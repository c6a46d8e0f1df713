package config

const (
	defaultCatalogFile     = "~/.local/share/menagerie/data/animals.json"
	defaultRichCatalogFile = "~/.local/share/menagerie/data/animals_rich.json"
	defaultFactsFile       = "~/.local/share/menagerie/data/facts.json"
	defaultAudioRoot       = "~/.local/share/menagerie/audio"
	defaultScriptsFile     = "~/.local/share/menagerie/data/simple_scripts.json"
	defaultManifestPath    = "~/.local/share/menagerie/manifest.db"
	defaultLogDir          = "~/.local/share/menagerie/logs"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	defaultTextGenBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultTextGenModel          = "gpt-4o-mini"
	defaultTextGenTimeoutSeconds = 60

	defaultSpeechBaseURL         = "https://api.elevenlabs.io/v1"
	defaultSpeechVoiceID         = "21m00Tcm4TlvDq8ikWAM"
	defaultSpeechModel           = "eleven_monolingual_v1"
	defaultSpeechNameModel       = "eleven_multilingual_v2"
	defaultSpeechStability       = 0.55
	defaultSpeechSimilarityBoost = 0.80
	defaultSpeechOutputFormat    = "mp3_44100_128"

	defaultBatchSize         = 3
	defaultBatchPauseSeconds = 1
	defaultMaxRenderAttempts = 3
	defaultRetryBaseSeconds  = 3
	// Locks older than this are treated as abandoned by a dead worker.
	defaultLockStaleSeconds = 6 * 60 * 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CatalogFile:     defaultCatalogFile,
			RichCatalogFile: defaultRichCatalogFile,
			FactsFile:       defaultFactsFile,
			AudioRoot:       defaultAudioRoot,
			ScriptsFile:     defaultScriptsFile,
			ManifestPath:    defaultManifestPath,
			LogDir:          defaultLogDir,
		},
		TextGen: TextGen{
			BaseURL:        defaultTextGenBaseURL,
			Model:          defaultTextGenModel,
			TimeoutSeconds: defaultTextGenTimeoutSeconds,
		},
		Speech: Speech{
			BaseURL:         defaultSpeechBaseURL,
			VoiceID:         defaultSpeechVoiceID,
			Model:           defaultSpeechModel,
			NameModel:       defaultSpeechNameModel,
			Stability:       defaultSpeechStability,
			SimilarityBoost: defaultSpeechSimilarityBoost,
			SpeakerBoost:    true,
			OutputFormat:    defaultSpeechOutputFormat,
		},
		Pipeline: Pipeline{
			BatchSize:         defaultBatchSize,
			BatchPauseSeconds: defaultBatchPauseSeconds,
			MaxRenderAttempts: defaultMaxRenderAttempts,
			RetryBaseSeconds:  defaultRetryBaseSeconds,
			LockStaleSeconds:  defaultLockStaleSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
