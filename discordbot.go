package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const discordRequestTimeout = 10 * time.Second

type DiscordBot struct {
	config     *DiscordBotConfig
	controller bridgeController
	status     relayStatus

	logger             zerolog.Logger
	session            *discordgo.Session
	registeredCommands []*discordgo.ApplicationCommand
}

type DiscordBotConfig struct {
	BotToken string `yaml:"bot-token" validate:"required"`
	GuildId  string `yaml:"guild-id"`
}

func (d *DiscordBot) Start() error {
	err := d.session.Open()
	if err != nil {
		return fmt.Errorf("cannot open the session: %w", err)
	}

	d.logger.Info().Msg("Adding commands...")
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commands))
	for _, v := range commands {
		cmd, err := d.session.ApplicationCommandCreate(d.session.State.User.ID, d.config.GuildId, v)
		if err != nil {
			d.registeredCommands = registeredCommands
			return fmt.Errorf("cannot create %q command: %w", v.Name, err)
		}
		registeredCommands = append(registeredCommands, cmd)
	}
	d.registeredCommands = registeredCommands

	return nil
}

func (d *DiscordBot) Stop() {
	d.logger.Info().Msg("Removing commands...")

	for _, v := range d.registeredCommands {
		err := d.session.ApplicationCommandDelete(d.session.State.User.ID, d.config.GuildId, v.ID)
		if err != nil {
			d.logger.Error().Err(err).Msgf("Cannot delete %q command", v.Name)
		}
	}

	err := d.session.Close()
	if err != nil {
		d.logger.Error().Err(err).Msg("Unable to close the session")
	}

	d.logger.Info().Msg("Gracefully shutting down")
}

func (d *DiscordBot) followup(logger zerolog.Logger, s *discordgo.Session, i *discordgo.InteractionCreate) func(string) {
	return func(content string) {
		_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: content,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to send follow-up message")
		}
	}
}

func (d *DiscordBot) relayStatusHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	logger := d.logger.With().Str("username", interactionUser(i)).Logger()
	logger.Info().Msg("A user checks the relay status")
	sendFollowup := d.followup(logger, s, i)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: "⏳ Asking the relay… Please wait",
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to send interaction response")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordRequestTimeout)
	defer cancel()

	snapshot, err := d.controller.Snapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve bridge state")
		sendFollowup("❌ Oops! The bridge is not running")
		return
	}
	reportedState, pingState := d.status.Status(ctx)

	var lines []string
	if snapshot.Playing {
		lines = append(lines, "🎵 Music is playing")
	} else {
		lines = append(lines, "💤 Music is paused")
	}
	lines = append(lines, fmt.Sprintf("🔌 Relay should be **%s**", snapshot.Relay))

	switch {
	case reportedState.Err != nil:
		logger.Error().Err(reportedState.Err).Msg("Failed to retrieve relay state")
		lines = append(lines, "❌ The relay did not report its state")
	default:
		lines = append(lines, fmt.Sprintf("📡 Relay reports **%s**", reportedState.Value))
	}
	if pingState.Err != nil {
		logger.Error().Err(pingState.Err).Msg("Failed to ping relay")
	} else if !pingState.Value {
		lines = append(lines, "⚠️ The relay does not answer pings")
	}

	sendFollowup(strings.Join(lines, "\n"))
}

func (d *DiscordBot) relaySyncHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	logger := d.logger.With().Str("username", interactionUser(i)).Logger()
	logger.Info().Msg("A user requests a relay state check")

	d.controller.Sync()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: "🔄 Checking the relay against playback now",
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to send interaction response")
	}
}

// interactionUser works for both guild and direct-message interactions.
func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "relay_status",
		Description: "Shows playback and relay state",
	},
	{
		Name:        "relay_sync",
		Description: "Checks the relay against playback right away",
	},
}

func NewDiscordBot(config *DiscordBotConfig, controller bridgeController, status relayStatus, logger zerolog.Logger) (*DiscordBot, error) {
	logger = logger.With().Str("scope", "discord").Logger()

	session, err := discordgo.New("Bot " + config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("invalid bot parameters: %w", err)
	}

	bot := &DiscordBot{config, controller, status, logger, session, nil}

	commandHandlers := map[string]func(*discordgo.Session, *discordgo.InteractionCreate){
		"relay_status": bot.relayStatusHandler,
		"relay_sync":   bot.relaySyncHandler,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if h, ok := commandHandlers[i.ApplicationCommandData().Name]; ok {
			h(s, i)
		}
	})

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info().
			Str("discriminator", s.State.User.Discriminator).
			Str("username", s.State.User.Username).
			Msg(fmt.Sprintf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator))
	})

	return bot, nil
}
