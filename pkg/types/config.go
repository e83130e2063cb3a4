package types

import (
	"fmt"
	"strings"
)

type Config struct {
	Environment      string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	ServerPort       uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	ReadTimeoutSec   uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec  uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"60"`

	// Object Storage
	AWSRegion            string `envconfig:"AWS_REGION" default:"us-east-1"`
	S3Endpoint           string `envconfig:"S3_ENDPOINT"`
	S3PathStyle          bool   `envconfig:"S3_PATH_STYLE" default:"false"`
	StoragePublicBaseURL string `envconfig:"STORAGE_PUBLIC_BASE_URL"`
	ToolImagesBucket     string `envconfig:"TOOL_IMAGES_BUCKET" default:"tool-images"`
	EventDocumentsBucket string `envconfig:"EVENT_DOCUMENTS_BUCKET" default:"event-documents"`
	StorageMaxAttempts   int    `envconfig:"STORAGE_MAX_ATTEMPTS" default:"3"`
	UploadConcurrency    int    `envconfig:"UPLOAD_CONCURRENCY" default:"4"`

	// Uploads
	MaxUploadBytes    int64 `envconfig:"MAX_UPLOAD_BYTES" default:"5242880"` // 5MB per file
	ImageMaxDimension int   `envconfig:"IMAGE_MAX_DIMENSION" default:"1600"` // 0 keeps originals

	// Public ids
	PublicIDMaxAttempts int `envconfig:"PUBLIC_ID_MAX_ATTEMPTS" default:"5"`

	// Cognito Auth
	CognitoUserPoolID string `envconfig:"COGNITO_USER_POOL_ID"`
	CognitoClientID   string `envconfig:"COGNITO_CLIENT_ID"`
	CognitoIssuerURL  string `envconfig:"COGNITO_ISSUER_URL"`

	// Auth Configuration
	CookieName       string `envconfig:"SESSION_COOKIE_NAME" default:"logbook_session"`
	SessionMaxAgeSec int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"` // 7 days

	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes
}

// IsDevelopment reports whether the service runs on a developer machine,
// where session cookies are sent over plain HTTP.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// CognitoIssuer returns COGNITO_ISSUER_URL, or builds the issuer from the
// region and user pool id when only those are set.
func (c *Config) CognitoIssuer() string {
	if c.CognitoIssuerURL != "" {
		return strings.TrimSuffix(c.CognitoIssuerURL, "/")
	}
	if c.CognitoUserPoolID == "" {
		return ""
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.AWSRegion, c.CognitoUserPoolID)
}
