package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"midad_platform/midad/assistant"
	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"
	"midad_platform/midad/services"
	"midad_platform/midad/session"
	"midad_platform/midad/userdata"
	"midad_platform/utils"
	"midad_platform/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type midadEnv struct {
	PublicHostname string
	DataDir        string
	JwtSecret      string

	AdminName     string
	AdminEmail    string
	AdminPassword string

	IdentityProvider      string
	KeycloakServerUrl     string
	UseSslInLogin         bool
	KeycloakAdminUsername string
	keycloakAdminPassword string

	RedisAddr     string
	redisPassword string

	AiProvider  string
	aiKey       string
	AiModel     string
	PromptsFile string

	DatabaseUri string
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

/**
 * ==========================================================================
 * ==== All variables that are used by the platform must be loaded here. ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() midadEnv {
	missingEnvs := []string{}

	requiredEnv := func(key string) string {
		env := os.Getenv(key)
		if env == "" {
			missingEnvs = append(missingEnvs, key)
			slog.Error("missing required env variable", "key", key)
		}
		return env
	}

	env := midadEnv{
		PublicHostname: requiredEnv("PUBLIC_HOSTNAME"),
		DataDir:        requiredEnv("DATA_DIR"),
		JwtSecret:      requiredEnv("JWT_SECRET"),

		AdminName:     requiredEnv("ADMIN_NAME"),
		AdminEmail:    requiredEnv("ADMIN_MAIL"),
		AdminPassword: requiredEnv("ADMIN_PASSWORD"),

		IdentityProvider:      requiredEnv("IDENTITY_PROVIDER"),
		KeycloakServerUrl:     utils.OptionalEnv("KEYCLOAK_SERVER_URL"),
		UseSslInLogin:         utils.BoolEnvVar("USE_SSL_IN_LOGIN"),
		KeycloakAdminUsername: utils.OptionalEnv("KEYCLOAK_ADMIN_USER"),
		keycloakAdminPassword: utils.OptionalEnv("KEYCLOAK_ADMIN_PASSWORD"),

		RedisAddr:     utils.OptionalEnv("REDIS_ADDR"),
		redisPassword: utils.OptionalEnv("REDIS_PASSWORD"),

		AiProvider:  utils.OptionalEnv("AI_PROVIDER"),
		aiKey:       utils.OptionalEnv("AI_API_KEY"),
		AiModel:     utils.OptionalEnv("AI_MODEL"),
		PromptsFile: utils.OptionalEnv("PROMPTS_FILE"),

		DatabaseUri: requiredEnv("DATABASE_URI"),
	}

	if len(missingEnvs) > 0 {
		log.Fatalf("The following required env vars are missing: %s", strings.Join(missingEnvs, ", "))
	}

	if env.IdentityProvider == "keycloak" && env.KeycloakServerUrl == "" {
		log.Fatal("Must specify KEYCLOAK_SERVER_URL when IDENTITY_PROVIDER is keycloak")
	}
	if env.AiProvider != "" && env.aiKey == "" {
		log.Fatalf("Must specify AI_API_KEY when AI_PROVIDER '%v' is set", env.AiProvider)
	}

	return env
}

func (env *midadEnv) postgresDsn() string {
	parts, err := url.Parse(env.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))

	handler := slog.NewJSONHandler(io.MultiWriter(logFile, os.Stderr), logging.GetVictoriaLogsOptions(false))
	slog.SetDefault(slog.New(handler))

	slog.Info("logging initialized", "code", logging.SYSTEM, "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(schema.AllTables()...)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func (env *midadEnv) identityProvider(db *gorm.DB, auditLog *os.File, resolver *session.Resolver) auth.IdentityProvider {
	if env.IdentityProvider == "keycloak" {
		provider, err := auth.NewKeycloakIdentityProvider(
			db,
			auth.NewAuditLogger(auditLog),
			resolver,
			auth.KeycloakArgs{
				KeycloakServerUrl:     env.KeycloakServerUrl,
				KeycloakAdminUsername: env.KeycloakAdminUsername,
				KeycloakAdminPassword: env.keycloakAdminPassword,
				AdminName:             env.AdminName,
				AdminEmail:            env.AdminEmail,
				AdminPassword:         env.AdminPassword,
				PublicHostname:        env.PublicHostname,
				SslLogin:              env.UseSslInLogin,
			},
		)
		if err != nil {
			log.Fatalf("error creating keycloak identity provider: %v", err)
		}
		return provider
	}

	provider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(env.JwtSecret),
			AdminName:     env.AdminName,
			AdminEmail:    env.AdminEmail,
			AdminPassword: env.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating basic identity provider: %v", err)
	}
	return provider
}

func (env *midadEnv) changeFeed() realtime.Feed {
	if env.RedisAddr != "" {
		slog.Info("using redis change feed", "addr", env.RedisAddr)
		return realtime.NewRedisFeed(env.RedisAddr, env.redisPassword)
	}
	slog.Info("using in process change feed")
	return realtime.NewMemoryFeed()
}

func (env *midadEnv) textGenerator() assistant.TextGenerator {
	switch env.AiProvider {
	case "":
		slog.Info("no ai provider configured, assistant endpoints disabled")
		return nil
	case "gemini":
		generator, err := assistant.NewGeminiGenerator(env.aiKey, env.AiModel)
		if err != nil {
			log.Fatalf("error creating gemini generator: %v", err)
		}
		return generator
	case "openai":
		generator, err := assistant.NewOpenAIGenerator(env.aiKey, env.AiModel)
		if err != nil {
			log.Fatalf("error creating openai generator: %v", err)
		}
		return generator
	default:
		log.Fatalf("unknown ai provider '%v', must be 'gemini' or 'openai'", env.AiProvider)
		return nil
	}
}

func (env *midadEnv) assistantPrompts() *assistant.Prompts {
	if env.PromptsFile == "" {
		return assistant.DefaultPrompts()
	}
	prompts, err := assistant.LoadPromptOverrides(env.PromptsFile)
	if err != nil {
		log.Fatalf("error loading prompt overrides: %v", err)
	}
	return prompts
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	err := os.MkdirAll(filepath.Join(env.DataDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.DataDir, "logs/midad.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.DataDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(env.postgresDsn())

	store, err := userdata.NewDiskStore(filepath.Join(env.DataDir, "workspaces"))
	if err != nil {
		log.Fatalf("error creating workspace store: %v", err)
	}

	data := userdata.NewManager(store)
	feed := env.changeFeed()
	resolver := session.NewResolver(session.NewGormRecordStore(db), session.DefaultRetryPolicy())
	identityProvider := env.identityProvider(db, auditLog, resolver)

	platform := services.NewPlatform(
		db,
		identityProvider,
		data,
		feed,
		resolver,
		env.textGenerator(),
		env.assistantPrompts(),
	)

	go platform.DeadlineSweep(10 * time.Minute)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{env.PublicHostname},                        // Allow public origin
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Mount("/api/v1", platform.Routes())
	r.Handle("/metrics", promhttp.Handler())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	platform.StopDeadlineSweep()
}
