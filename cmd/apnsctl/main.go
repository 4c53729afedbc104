package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/apns"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/logger"
)

var flagEnvironment = &cli.StringFlag{
	Name:    "environment",
	Value:   config.EnvironmentDevelopment,
	Usage:   "Gateway environment (development or production)",
	EnvVars: []string{"APNS_ENVIRONMENT"},
}
var flagAuth = &cli.StringFlag{
	Name:    "auth",
	Value:   config.AuthToken,
	Usage:   "Authentication method (token or certificate)",
	EnvVars: []string{"APNS_AUTH_METHOD"},
}
var flagTeamID = &cli.StringFlag{
	Name:    "team-id",
	Usage:   "Developer team id used as token issuer",
	EnvVars: []string{"APNS_TEAM_ID"},
}
var flagKeyID = &cli.StringFlag{
	Name:    "key-id",
	Usage:   "Id of the signing key",
	EnvVars: []string{"APNS_KEY_ID"},
}
var flagKeyPath = &cli.StringFlag{
	Name:    "key-path",
	Usage:   "Path to the .p8 signing key",
	EnvVars: []string{"APNS_KEY_PATH"},
}
var flagSignatureEncoding = &cli.StringFlag{
	Name:    "signature-encoding",
	Value:   "der",
	Usage:   "Token signature encoding (der or jose)",
	EnvVars: []string{"APNS_SIGNATURE_ENCODING"},
}
var flagCertPath = &cli.StringFlag{
	Name:    "cert",
	Usage:   "Client certificate (PEM, or PKCS#12 when a passphrase is set)",
	EnvVars: []string{"APNS_CERT_PATH"},
}
var flagCertKeyPath = &cli.StringFlag{
	Name:    "cert-key",
	Usage:   "Private key of the client certificate, defaults to --cert",
	EnvVars: []string{"APNS_CERT_KEY_PATH"},
}
var flagCertPassphrase = &cli.StringFlag{
	Name:    "cert-passphrase",
	Usage:   "Passphrase of a PKCS#12 client certificate",
	EnvVars: []string{"APNS_CERT_PASSPHRASE"},
}
var flagCAPath = &cli.StringFlag{
	Name:    "ca",
	Usage:   "Additional CA bundle",
	EnvVars: []string{"APNS_CA_PATH"},
}
var flagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	Value:   "warn",
	EnvVars: []string{"LOG_LEVEL"},
}

var authFlags = []cli.Flag{
	flagEnvironment,
	flagAuth,
	flagTeamID,
	flagKeyID,
	flagKeyPath,
	flagSignatureEncoding,
	flagCertPath,
	flagCertKeyPath,
	flagCertPassphrase,
	flagCAPath,
	flagLogLevel,
}

var flagTopic = &cli.StringFlag{
	Name:     "topic",
	Usage:    "App bundle id the notification is addressed to",
	EnvVars:  []string{"APNS_DEFAULT_TOPIC"},
	Required: true,
}
var flagDeviceTokens = &cli.StringSliceFlag{
	Name:     "device-token",
	Aliases:  []string{"t"},
	Usage:    "Device token, repeat for several devices",
	Required: true,
}
var flagTitle = &cli.StringFlag{Name: "title"}
var flagSubtitle = &cli.StringFlag{Name: "subtitle"}
var flagBody = &cli.StringFlag{Name: "body"}
var flagSound = &cli.StringFlag{Name: "sound"}
var flagCategory = &cli.StringFlag{Name: "category"}
var flagThreadID = &cli.StringFlag{Name: "thread-id"}
var flagBadge = &cli.Int64Flag{Name: "badge", Usage: "Badge number, set only when given"}
var flagContentAvailable = &cli.BoolFlag{Name: "content-available"}
var flagMutableContent = &cli.BoolFlag{Name: "mutable-content"}
var flagData = &cli.StringFlag{Name: "data", Usage: "JSON object merged next to the aps dictionary"}
var flagPriority = &cli.StringFlag{Name: "priority", Usage: "high or low"}
var flagMode = &cli.StringFlag{Name: "mode", Value: "regular", Usage: "regular or voip"}
var flagCollapseID = &cli.StringFlag{Name: "collapse-id"}
var flagApnsID = &cli.StringFlag{Name: "apns-id", Usage: "UUID sent as apns-id, generated when empty"}
var flagExpireImmediately = &cli.BoolFlag{Name: "expire-immediately"}
var flagRetryLimit = &cli.IntFlag{
	Name:    "retry-limit",
	Value:   3,
	EnvVars: []string{"APNS_RETRY_LIMIT"},
}
var flagRetryInterval = &cli.DurationFlag{
	Name:    "retry-interval",
	EnvVars: []string{"APNS_RETRY_INTERVAL"},
}
var flagTimeout = &cli.DurationFlag{
	Name:    "timeout",
	Usage:   "Per request timeout",
	EnvVars: []string{"PROVIDER_TIMEOUT"},
}

func main() {
	app := &cli.App{
		Name:  "apnsctl",
		Usage: "send notifications through the Apple Push Notification service",
		Commands: []*cli.Command{
			{
				Name:  "send",
				Usage: "deliver one notification to one or more device tokens",
				Flags: append([]cli.Flag{
					flagTopic,
					flagDeviceTokens,
					flagTitle,
					flagSubtitle,
					flagBody,
					flagSound,
					flagCategory,
					flagThreadID,
					flagBadge,
					flagContentAvailable,
					flagMutableContent,
					flagData,
					flagPriority,
					flagMode,
					flagCollapseID,
					flagApnsID,
					flagExpireImmediately,
					flagRetryLimit,
					flagRetryInterval,
					flagTimeout,
				}, authFlags...),
				Action: send,
			},
			{
				Name:  "token",
				Usage: "print a freshly signed provider token",
				Flags: []cli.Flag{flagTeamID, flagKeyID, flagKeyPath, flagSignatureEncoding},
				Action: func(cCtx *cli.Context) error {
					apnsCfg := apnsConfig(cCtx)
					apnsCfg.AuthMethod = config.AuthToken
					apnsCfg.Environment = config.EnvironmentDevelopment
					auth, _, err := apnsCfg.Authenticator()
					if err != nil {
						return err
					}
					token, err := auth.(*apns.TokenAuthenticator).Token()
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func apnsConfig(cCtx *cli.Context) config.APNSConfig {
	return config.APNSConfig{
		Environment:       strings.ToLower(cCtx.String(flagEnvironment.Name)),
		AuthMethod:        strings.ToLower(cCtx.String(flagAuth.Name)),
		TeamID:            cCtx.String(flagTeamID.Name),
		KeyID:             cCtx.String(flagKeyID.Name),
		KeyPath:           cCtx.String(flagKeyPath.Name),
		SignatureEncoding: strings.ToLower(cCtx.String(flagSignatureEncoding.Name)),
		CertPath:          cCtx.String(flagCertPath.Name),
		CertKeyPath:       cCtx.String(flagCertKeyPath.Name),
		CertPassphrase:    cCtx.String(flagCertPassphrase.Name),
		CAPath:            cCtx.String(flagCAPath.Name),
	}
}

func send(cCtx *cli.Context) error {
	logr := logger.NewWithWriter(os.Stderr, cCtx.String(flagLogLevel.Name), "text")

	apnsCfg := apnsConfig(cCtx)
	auth, tlsConfig, err := apnsCfg.Authenticator()
	if err != nil {
		return err
	}
	transport := apns.NewHTTPTransport(tlsConfig, cCtx.Duration(flagTimeout.Name))
	defer transport.Close()

	req := &models.PushRequest{
		AppBundle: cCtx.String(flagTopic.Name),
		Notification: models.Notification{
			Title:            cCtx.String(flagTitle.Name),
			Subtitle:         cCtx.String(flagSubtitle.Name),
			Body:             cCtx.String(flagBody.Name),
			Sound:            cCtx.String(flagSound.Name),
			Category:         cCtx.String(flagCategory.Name),
			ThreadID:         cCtx.String(flagThreadID.Name),
			ContentAvailable: cCtx.Bool(flagContentAvailable.Name),
			MutableContent:   cCtx.Bool(flagMutableContent.Name),
		},
		Options: models.DeliveryOptions{
			Priority:          cCtx.String(flagPriority.Name),
			Mode:              cCtx.String(flagMode.Name),
			CollapseID:        cCtx.String(flagCollapseID.Name),
			ApnsID:            cCtx.String(flagApnsID.Name),
			ExpireImmediately: cCtx.Bool(flagExpireImmediately.Name),
		},
	}
	if cCtx.IsSet(flagBadge.Name) {
		badge := cCtx.Int64(flagBadge.Name)
		req.Notification.Badge = &badge
	}
	if raw := cCtx.String(flagData.Name); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Data); err != nil {
			return fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}

	msg, err := services.BuildMessage(req, cCtx.StringSlice(flagDeviceTokens.Name), "")
	if err != nil {
		return err
	}

	engine := apns.NewEngine(transport, auth, apns.Config{
		BaseURL:       apnsCfg.BaseURL(),
		RetryLimit:    cCtx.Int(flagRetryLimit.Name),
		RetryInterval: cCtx.Duration(flagRetryInterval.Name),
		ShouldRetry:   services.ShouldRetry,
		Feedback: func(env *apns.Envelope) {
			if env.Status().Success() {
				fmt.Printf("%s\t%s\n", env.DeviceToken(), env.Status())
			}
		},
	}, logr)
	if err := engine.Enqueue(msg); err != nil {
		return err
	}

	unsuccessful := engine.Drain(cCtx.Context)
	for _, env := range unsuccessful {
		history := make([]string, 0, len(env.History()))
		for _, status := range env.History() {
			history = append(history, status.Kind.String())
		}
		fmt.Printf("%s\t%s\t%s\n", env.DeviceToken(), env.Status(), strings.Join(history, " -> "))
	}
	if len(unsuccessful) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d notifications were not delivered", len(unsuccessful), len(msg.DeviceTokens())), 1)
	}
	return nil
}
