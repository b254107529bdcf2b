// Command nevilcore is the composition root: it wires MessageBus, MicMutex,
// SessionTransport, CaptureActor, SynthesisActor, and CognitionActor into a
// running process, then waits for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevil-robotics/audio-core/pkg/bus"
	"github.com/nevil-robotics/audio-core/pkg/capture"
	"github.com/nevil-robotics/audio-core/pkg/cognition"
	"github.com/nevil-robotics/audio-core/pkg/config"
	"github.com/nevil-robotics/audio-core/pkg/echo"
	"github.com/nevil-robotics/audio-core/pkg/micmutex"
	"github.com/nevil-robotics/audio-core/pkg/session"
	"github.com/nevil-robotics/audio-core/pkg/synth"
	"github.com/nevil-robotics/audio-core/pkg/telemetry"
	"github.com/nevil-robotics/audio-core/pkg/vision"
)

func main() {
	cfg := config.Load()
	logger := telemetry.NewCharmLogger("nevilcore", cfg.LogLevel)

	if cfg.Transport.AuthToken == "" {
		logger.Error("NEVIL_AUTH_TOKEN must be set")
		os.Exit(1)
	}

	msgBus := bus.New(bus.DefaultQueueSize)
	mutex := micmutex.New(logger)
	echoSup := echo.New()

	transport := session.New(cfg.Transport.EndpointURL, cfg.Transport.AuthToken, session.SessionConfig{
		Modalities:      cfg.Transport.Modalities,
		Voice:           cfg.Transport.Voice,
		Instructions:    cfg.Cognition.SystemInstructions,
		Temperature:     cfg.Transport.Temperature,
		MaxOutputTokens: cfg.Transport.MaxOutputTokens,
	}, logger, session.WithReconnectPolicy(
		time.Duration(cfg.Transport.ReconnectBaseDelay)*time.Millisecond,
		time.Duration(cfg.Transport.ReconnectMaxDelay)*time.Millisecond,
	))

	mic, err := capture.OpenMalgoMic(cfg.Audio.CaptureDeviceID)
	if err != nil {
		logger.Error("failed to open capture device", "err", err)
		os.Exit(1)
	}

	playback := synth.NewMalgoPlayback(cfg.Synthesis.PlaybackDeviceID, echoSup.RecordPlayedAudio)

	synthActor := synth.New(synthConfig(cfg), mutex, transport, msgBus, playback, echoSup, logger)
	captureActor := capture.New(captureConfig(cfg), mic, mutex, transport, msgBus, echoSup, synthActor, logger)

	tools := cognition.NewToolRegistry()
	registerStubTools(tools, msgBus, logger)

	cognitionActor := cognition.New(cognition.DefaultConfig(), transport, msgBus, tools, describerFor(cfg), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		logger.Error("failed to start session transport", "err", err)
		os.Exit(1)
	}
	defer transport.Stop("shutdown")

	synthActor.Start()
	defer synthActor.Stop()

	cognitionActor.Start()
	defer cognitionActor.Stop()

	go func() {
		if err := captureActor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("capture actor stopped unexpectedly", "err", err)
		}
	}()

	logger.Info("nevilcore started", "model", cfg.Transport.ModelName, "voice", cfg.Transport.Voice)
	fmt.Println("Nevil audio core running. Press Ctrl+C to exit.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	cancel()
}

func captureConfig(cfg config.Config) capture.Config {
	c := capture.DefaultConfig()
	c.VADEnabled = cfg.Audio.VADEnabled
	c.VADThreshold = cfg.Audio.VADThreshold
	c.MinSpeechDurationMs = cfg.Audio.VADMinSpeechMs
	c.SilenceDurationMs = cfg.Audio.VADSilenceMs
	c.SilencePaddingMs = cfg.Audio.SilencePaddingMs
	c.CommitCooldownMs = cfg.Audio.CommitCooldownMs
	c.SoftwareGain = cfg.Audio.SoftwareGain
	c.GateOnSilence = cfg.Audio.GateOnSilence
	return c
}

func synthConfig(cfg config.Config) synth.Config {
	s := synth.DefaultConfig()
	s.WavDir = cfg.Synthesis.WavDir
	s.WavRetentionCount = cfg.Synthesis.WavRetentionCount
	s.Voice = cfg.Transport.Voice
	s.Instructions = cfg.Cognition.SystemInstructions
	return s
}

// describerFor picks the image-description provider matching the
// configured NEVIL_VISION_PROVIDER, sharing whichever API key the operator set.
func describerFor(cfg config.Config) vision.Describer {
	if cfg.Cognition.VisionAPIKey == "" {
		return nil
	}
	switch cfg.Cognition.VisionProvider {
	case "anthropic":
		return vision.NewAnthropicDescriber(cfg.Cognition.VisionAPIKey, cfg.Cognition.VisionModel)
	case "google":
		return vision.NewGoogleDescriber(cfg.Cognition.VisionAPIKey, cfg.Cognition.VisionModel)
	case "openai":
		fallthrough
	default:
		return vision.NewOpenAIDescriber(cfg.Cognition.VisionAPIKey, cfg.Cognition.VisionModel)
	}
}

// registerStubTools wires a handful of example tool names to stub handlers
// that report success: take_snapshot publishes a visual_request,
// set_navigation_mode publishes a robot_action, and remember/recall only
// log their arguments; the physical
// effectors themselves (gesture/navigation/memory subsystems) are external
// collaborators outside this core's scope.
func registerStubTools(tools *cognition.ToolRegistry, msgBus *bus.Bus, logger telemetry.Logger) {
	publishAction := func(action string) {
		msgBus.Publish(bus.TopicRobotAction, bus.RobotAction{
			Actions:   []string{action},
			Timestamp: time.Now(),
		}, "cognition")
	}

	tools.Register("take_snapshot", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		msgBus.Publish(bus.TopicVisualRequest, bus.VisualRequest{Reason: "tool_call", Timestamp: time.Now()}, "cognition")
		return map[string]string{"status": "requested"}, nil
	})

	tools.Register("remember", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		logger.Info("tool: remember", "args", args)
		return map[string]string{"status": "ok"}, nil
	})

	tools.Register("recall", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		logger.Info("tool: recall", "args", args)
		return map[string]string{"status": "ok", "result": ""}, nil
	})

	tools.Register("set_navigation_mode", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		mode, _ := args["mode"].(string)
		publishAction("navigation_mode:" + mode)
		return map[string]string{"status": "ok"}, nil
	})
}
