package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"mobiperf/backend/internal/acl"
	"mobiperf/backend/internal/config"
	"mobiperf/backend/internal/db"
	devicerepo "mobiperf/backend/internal/device/repository"
	"mobiperf/backend/internal/matcher"
	"mobiperf/backend/internal/measurement"
	measurementrepo "mobiperf/backend/internal/measurement/repository"
	"mobiperf/backend/internal/platform/logging"
	"mobiperf/backend/internal/policy/engine"
	"mobiperf/backend/internal/principal"
	"mobiperf/backend/internal/security"
	taskrepo "mobiperf/backend/internal/task/repository"
	"mobiperf/backend/internal/telemetry"
	oteltelemetry "mobiperf/backend/internal/telemetry/otel"
	validationrepo "mobiperf/backend/internal/validation/repository"
)

// app holds the collaborators one command invocation needs.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	conn      *sql.DB
	providers *oteltelemetry.Providers
	who       principal.Principal

	policy      *engine.OPAEvaluator
	acl         *acl.Service
	matcher     *matcher.Matcher
	resolver    *measurement.Resolver
	tasks       taskrepo.Repository
	assignments taskrepo.AssignmentRepository
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	log := logging.NewColor(os.Stderr, level)

	who, err := bindPrincipal(cmd, cfg)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	emitter := oteltelemetry.NewEventEmitter(providers.LoggerProvider)

	policies, err := cmd.Root().PersistentFlags().GetStringSlice("policy")
	if err != nil {
		return nil, fmt.Errorf("failed to get policy flag: %w", err)
	}
	modules := make([]string, 0, len(policies))
	for _, path := range policies {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", path, err)
		}
		modules = append(modules, string(b))
	}
	evaluator, err := engine.NewOPAEvaluator(ctx, log, modules...)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if err := evaluator.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("policy health check: %w", err)
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("db: %w", err)
	}

	devices := devicerepo.NewPostgresRepository(conn)
	properties := devicerepo.NewPostgresPropertiesRepository(conn)
	a := &app{
		cfg:         cfg,
		log:         log,
		conn:        conn,
		providers:   providers,
		who:         who,
		policy:      evaluator,
		tasks:       taskrepo.NewPostgresRepository(conn),
		assignments: taskrepo.NewPostgresAssignmentRepository(conn),
	}
	measurements := measurementrepo.NewPostgresRepository(conn)
	a.acl = acl.NewService(
		devices,
		measurements,
		validationrepo.NewPostgresRepository(conn),
		evaluator,
		emitter,
		log,
		cfg.QueryFetchLimit,
	)
	a.matcher = matcher.New(devices, properties, matcher.Config{
		StalenessWindow: cfg.Staleness(),
		FilterTTL:       cfg.FilterTTL(),
	}, clockwork.NewRealClock(), emitter, log)
	a.resolver = measurement.NewResolver(a.tasks, measurements, emitter, log)
	log.Debug("principal resolved", "user_id", who.UserID, "admin", who.Admin, "anonymous_admin", who.AnonymousAdmin)
	return a, nil
}

// Close releases the database and flushes telemetry. When an OTLP endpoint is
// configured it first waits for in-flight async emits.
func (a *app) Close() {
	_ = a.conn.Close()
	if a.cfg.OTLPEndpoint != "" {
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.providers.Shutdown(ctx); err != nil {
		a.log.Warn("telemetry shutdown", "error", err)
	}
}

// bindPrincipal resolves the caller and stores it on the command context so
// later handlers can read it with principal.FromContext.
func bindPrincipal(cmd *cobra.Command, cfg *config.Config) (principal.Principal, error) {
	who, err := resolvePrincipal(cmd, cfg)
	if err != nil {
		return principal.Anonymous, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(principal.WithPrincipal(ctx, who))
	return who, nil
}

// resolvePrincipal returns the principal named by --token, or else the one
// described by --user, --admin and --anonymous-admin.
func resolvePrincipal(cmd *cobra.Command, cfg *config.Config) (principal.Principal, error) {
	flags := cmd.Root().PersistentFlags()
	token, err := flags.GetString("token")
	if err != nil {
		return principal.Anonymous, fmt.Errorf("failed to get token flag: %w", err)
	}
	if token != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return principal.Anonymous, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
		}
		tokens := security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
		return principalFromToken(tokens, token)
	}
	user, err := flags.GetString("user")
	if err != nil {
		return principal.Anonymous, fmt.Errorf("failed to get user flag: %w", err)
	}
	admin, err := flags.GetBool("admin")
	if err != nil {
		return principal.Anonymous, fmt.Errorf("failed to get admin flag: %w", err)
	}
	anonAdmin, err := flags.GetBool("anonymous-admin")
	if err != nil {
		return principal.Anonymous, fmt.Errorf("failed to get anonymous-admin flag: %w", err)
	}
	return principal.Principal{UserID: user, Admin: admin, AnonymousAdmin: anonAdmin}, nil
}

func principalFromToken(tokens *security.TokenProvider, token string) (principal.Principal, error) {
	who, err := tokens.ValidateAccess(token)
	if err != nil {
		return principal.Anonymous, fmt.Errorf("access token: %w", err)
	}
	return who, nil
}
