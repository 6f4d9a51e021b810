package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr       string
	CORSOrigin string
	// Content repository (the versioned blob store backing all documents)
	RepoDir    string
	RepoOwner  string
	RepoName   string
	RepoBranch string
	AuthorName string
	// Redis Configuration (catalog snapshot cache)
	RedisURL        string
	CacheTTLSeconds int
	// Meilisearch Configuration (content search)
	MeiliURL       string
	MeiliMasterKey string
	// MinIO Configuration (content media storage)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:            getenv("API_ADDR", ":8788"),
		CORSOrigin:      getenv("OPENLEARN_CORS_ORIGIN", "*"),
		RepoDir:         getenv("OPENLEARN_REPO_DIR", "./data/content-repo"),
		RepoOwner:       getenv("OPENLEARN_REPO_OWNER", "openlearn"),
		RepoName:        getenv("OPENLEARN_REPO_NAME", "openlearn-data"),
		RepoBranch:      getenv("OPENLEARN_REPO_BRANCH", "main"),
		AuthorName:      getenv("OPENLEARN_COMMIT_AUTHOR", "OpenLearn Hub"),
		RedisURL:        getenv("REDIS_URL", ""),
		CacheTTLSeconds: getenvInt("OPENLEARN_CACHE_TTL_SECONDS", 300),
		MeiliURL:        getenv("MEILI_URL", ""),
		MeiliMasterKey:  getenv("MEILI_MASTER_KEY", ""),
		MinioEndpoint:   getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getenv("MINIO_BUCKET", "openlearn-media"),
		MinioUseSSL:     getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
