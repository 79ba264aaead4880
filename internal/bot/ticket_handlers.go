package bot

import (
	"context"
	"fmt"
	"time"

	"distrack/internal/errs"
	"distrack/internal/storage"
	"distrack/internal/tickets"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	inputSubject     = "subject"
	inputDescription = "description"
	modalTitleLen    = 45
)

func ticketActor(interaction *discordgo.InteractionCreate) tickets.User {
	user := interactionUser(interaction)
	return tickets.User{ID: user.ID, Tag: user.String()}
}

func (b *Bot) handleComponent(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	id, err := ParseCustomID(interaction.MessageComponentData().CustomID, kindComponent)
	if err != nil {
		return err
	}
	switch id.Action {
	case actionCreate:
		return b.openCategoryPicker(ctx, session, interaction)
	case actionCategory:
		return b.openTicketForm(ctx, session, interaction)
	}

	// Lifecycle buttons are staff controls.
	if !b.isAuthorized(interaction) {
		return errs.ErrPermissionDenied
	}
	switch id.Action {
	case actionClose:
		ticket, err := b.tickets.Close(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction), "")
		if err != nil {
			return err
		}
		b.respondTicketState(session, interaction, ticket, "🔒 Ticket Closed", fmt.Sprintf("This ticket has been closed by %s.", mention(ticketActor(interaction).ID)))
	case actionReopen:
		ticket, err := b.tickets.Reopen(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction))
		if err != nil {
			return err
		}
		b.respondTicketState(session, interaction, ticket, "🔓 Ticket Reopened", fmt.Sprintf("This ticket has been reopened by %s.", mention(ticketActor(interaction).ID)))
	case actionDelete:
		return b.archiveTicket(ctx, session, interaction, "")
	default:
		return errs.ErrUnknownComponent
	}
	return nil
}

func (b *Bot) respondTicketState(session *discordgo.Session, interaction *discordgo.InteractionCreate, ticket storage.Ticket, title, description string) {
	embed := b.commandEmbed(title, description, b.cfg.Colors.Warning, nil)
	b.respondComplex(session, interaction, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: ticketControls(ticket.Status),
	}, false)
}

func (b *Bot) openCategoryPicker(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	if _, err := b.tickets.CheckEligibility(ctx, interaction.GuildID, ticketActor(interaction).ID); err != nil {
		return err
	}
	categories := b.tickets.Catalogue().All()
	menuOptions := make([]discordgo.SelectMenuOption, 0, len(categories))
	for _, cat := range categories {
		menuOptions = append(menuOptions, discordgo.SelectMenuOption{
			Label:       truncate(cat.Emoji+" "+cat.Name, 100),
			Value:       cat.Slug,
			Description: truncate(cat.Description, 100),
		})
	}
	b.respondComplex(session, interaction, &discordgo.InteractionResponseData{
		Content: "Select the category that best describes your request:",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    newCustomID(domainTicket, actionCategory),
					Placeholder: "Choose a category",
					Options:     menuOptions,
				},
			}},
		},
	}, true)
	return nil
}

func (b *Bot) openTicketForm(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	values := interaction.MessageComponentData().Values
	if len(values) == 0 {
		return errs.ErrUnknownCategory
	}
	category, ok := b.tickets.Catalogue().Lookup(values[0])
	if !ok {
		return errs.ErrUnknownCategory
	}
	if _, err := b.tickets.CheckEligibility(ctx, interaction.GuildID, ticketActor(interaction).ID); err != nil {
		return err
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: newCustomID(domainTicket, actionSubmit, category.Slug),
			Title:    truncate("Create Ticket - "+category.Name, modalTitleLen),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputSubject,
						Label:       "Subject",
						Style:       discordgo.TextInputShort,
						Placeholder: "Brief description of your issue",
						Required:    true,
						MaxLength:   tickets.MaxSubjectLen,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputDescription,
						Label:       "Description",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "Please provide detailed information about your issue",
						Required:    true,
						MaxLength:   tickets.MaxDescriptionLen,
					},
				}},
			},
		},
	})
	if err != nil {
		return errs.Wrap(errs.External, "open ticket form", err)
	}
	return nil
}

// modalValues collects text inputs by custom id. Submitted components
// decode as pointers.
func modalValues(components []discordgo.MessageComponent) map[string]string {
	values := make(map[string]string)
	for _, component := range components {
		var inner []discordgo.MessageComponent
		switch row := component.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, c := range inner {
			switch input := c.(type) {
			case *discordgo.TextInput:
				values[input.CustomID] = input.Value
			case discordgo.TextInput:
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}

// submitTicket debounces ticket creation per guild member. A request the
// manager rejects before creating anything does not hold the key, so the
// user can correct the form and resubmit at once.
func (b *Bot) submitTicket(ctx context.Context, req tickets.CreateRequest) (storage.Ticket, error) {
	key := req.GuildID + ":" + req.User.ID
	if !b.submits.Allow(key, time.Now()) {
		return storage.Ticket{}, errs.ErrTooFast
	}
	ticket, err := b.tickets.Create(ctx, req)
	if err != nil && errs.KindOf(err) != errs.External {
		b.submits.Release(key)
	}
	return ticket, err
}

func (b *Bot) handleModal(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	data := interaction.ModalSubmitData()
	id, err := ParseCustomID(data.CustomID, kindModal)
	if err != nil {
		return err
	}
	actor := ticketActor(interaction)
	values := modalValues(data.Components)
	ticket, err := b.submitTicket(ctx, tickets.CreateRequest{
		GuildID:     interaction.GuildID,
		User:        actor,
		Category:    id.Param(0),
		Subject:     values[inputSubject],
		Description: values[inputDescription],
	})
	if err != nil {
		return err
	}

	category, _ := b.tickets.Catalogue().Lookup(id.Param(0))
	welcome := &discordgo.MessageSend{
		Content:    mention(actor.ID),
		Embeds:     []*discordgo.MessageEmbed{b.ticketOpenedEmbed(ticket, category, ticket.Subject, values[inputDescription])},
		Components: ticketControls(storage.TicketOpen),
	}
	if err := b.platform.sendComplex(ctx, ticket.ChannelID, welcome); err != nil {
		b.logger.Warn("ticket welcome message failed", zap.String("ticket_id", ticket.TicketID), zap.String("channel_id", ticket.ChannelID), zap.Error(err))
	}

	b.respondEmbed(session, interaction, b.successEmbed("Ticket Created", fmt.Sprintf("Your ticket has been created: <#%s>", ticket.ChannelID)), true)
	return nil
}

func (b *Bot) archiveTicket(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, reason string) error {
	ticket, err := b.tickets.Archive(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction), reason)
	if err != nil {
		return err
	}
	description := fmt.Sprintf("Ticket **%s** has been archived. This channel will be deleted in %d seconds.", ticket.TicketID, int(b.tickets.DeleteDelay().Seconds()))
	b.respondEmbed(session, interaction, b.commandEmbed("🗑️ Ticket Deleted", description, b.cfg.Colors.Error, nil), false)
	return nil
}

func (b *Bot) handleTicketPanel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	channelID := opts.id("channel")
	if channelID == "" {
		channelID = interaction.ChannelID
	}
	guildCfg, err := b.store.GetGuildConfig(ctx, interaction.GuildID)
	if err != nil {
		return errs.Wrap(errs.External, "load guild config", err)
	}
	previousRole := guildCfg.Tickets.StaffRoleID
	guildCfg.Tickets.PanelChannelID = channelID
	if role := opts.id("staff_role"); role != "" {
		guildCfg.Tickets.StaffRoleID = role
	}

	panel := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{b.ticketPanelEmbed(b.tickets.Catalogue().All())},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "🎫 Create Ticket", Style: discordgo.PrimaryButton, CustomID: newCustomID(domainTicket, actionCreate)},
			}},
		},
	}
	if err := b.platform.sendComplex(ctx, channelID, panel); err != nil {
		return err
	}
	if err := b.store.SaveGuildConfig(ctx, guildCfg); err != nil {
		return errs.Wrap(errs.External, "save guild config", err)
	}
	b.audit.Record(ctx, storage.AuditLog{
		GuildID:     interaction.GuildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: interactionUser(interaction).ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Details:     map[string]string{"field": "ticket_panel"},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: previousRole, NewValue: guildCfg.Tickets.StaffRoleID},
	})
	b.respondEmbed(session, interaction, b.successEmbed("Ticket Panel Created", fmt.Sprintf("The ticket panel has been posted in <#%s>.", channelID)), true)
	return nil
}

func (b *Bot) handleTicketClose(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	reason := opts.string("reason")
	ticket, err := b.tickets.Close(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction), reason)
	if err != nil {
		return err
	}
	description := fmt.Sprintf("This ticket has been closed by %s.", mention(ticketActor(interaction).ID))
	if reason != "" {
		description += "\n**Reason:** " + reason
	}
	b.respondTicketState(session, interaction, ticket, "🔒 Ticket Closed", description)
	return nil
}

func (b *Bot) handleTicketDelete(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	return b.archiveTicket(ctx, session, interaction, opts.string("reason"))
}

func (b *Bot) handleTicketList(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	q := storage.TicketQuery{GuildID: interaction.GuildID, UserID: opts.id("user"), Limit: ticketDisplayLimit}
	switch status := opts.string("status"); status {
	case "all":
	case "":
		q.Statuses = []storage.TicketStatus{storage.TicketOpen}
	default:
		q.Statuses = []storage.TicketStatus{storage.TicketStatus(status)}
	}
	list, err := b.tickets.List(ctx, q)
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.ticketListEmbed(list), true)
	return nil
}

func (b *Bot) handleTicketNote(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	ticket, err := b.tickets.AddNote(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction), opts.string("note"))
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.successEmbed("Note Added", fmt.Sprintf("Staff note added to **%s** (%d notes).", ticket.TicketID, len(ticket.Notes))), true)
	return nil
}

func (b *Bot) handleTicketAssign(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	staffID := opts.id("staff")
	ticket, err := b.tickets.Assign(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction), staffID)
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.successEmbed("Ticket Assigned", fmt.Sprintf("**%s** is now assigned to %s.", ticket.TicketID, mention(staffID))), false)
	return nil
}

func (b *Bot) handleTicketPriority(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	ticket, err := b.tickets.SetPriority(ctx, interaction.GuildID, interaction.ChannelID, ticketActor(interaction), opts.string("priority"))
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.successEmbed("Priority Updated", fmt.Sprintf("**%s** priority is now **%s**.", ticket.TicketID, ticket.Priority)), false)
	return nil
}
