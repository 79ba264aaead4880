package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores every document kind in its own collection of one database.
type Mongo struct {
	client   *mongo.Client
	db       *mongo.Database
	tickets  *mongo.Collection
	warnings *mongo.Collection
	audit    *mongo.Collection
	guilds   *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string, connectTimeout time.Duration) (*Mongo, error) {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri).SetConnectTimeout(connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	m := &Mongo{
		client:   client,
		db:       db,
		tickets:  db.Collection("tickets"),
		warnings: db.Collection("warnings"),
		audit:    db.Collection("audit_logs"),
		guilds:   db.Collection("guild_configs"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{m.tickets, []mongo.IndexModel{
			{Keys: bson.D{{Key: "channel_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "ticket_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "created_at", Value: -1}}},
		}},
		{m.warnings, []mongo.IndexModel{
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "warning_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "active", Value: 1}}},
		}},
		{m.audit, []mongo.IndexModel{
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "action", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		}},
		{m.guilds, []mongo.IndexModel{
			{Keys: bson.D{{Key: "guild_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tickets
// ---------------------------------------------------------------------------

func (m *Mongo) CreateTicket(ctx context.Context, ticket *Ticket) error {
	if ticket.ID.IsZero() {
		ticket.ID = primitive.NewObjectID()
	}
	// $push refuses a null array.
	if ticket.Messages == nil {
		ticket.Messages = []TranscriptMessage{}
	}
	if _, err := m.tickets.InsertOne(ctx, ticket); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (m *Mongo) FindTicket(ctx context.Context, q TicketQuery) (Ticket, error) {
	q.Limit = 1
	tickets, err := m.FindTickets(ctx, q)
	if err != nil {
		return Ticket{}, err
	}
	if len(tickets) == 0 {
		return Ticket{}, ErrNotFound
	}
	return tickets[0], nil
}

func (m *Mongo) FindTickets(ctx context.Context, q TicketQuery) ([]Ticket, error) {
	sortKey := "created_at"
	if q.Closed {
		sortKey = "closed_at"
	}
	opts := options.Find().SetSort(bson.D{{Key: sortKey, Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := m.tickets.Find(ctx, ticketFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tickets []Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []Ticket{}
	}
	return tickets, nil
}

func (m *Mongo) CountTickets(ctx context.Context, q TicketQuery) (int64, error) {
	return m.tickets.CountDocuments(ctx, ticketFilter(q))
}

func (m *Mongo) UpdateTicket(ctx context.Context, ticket Ticket) error {
	update := bson.M{
		"$set": bson.M{
			"channel_id":  ticket.ChannelID,
			"user_id":     ticket.UserID,
			"category":    ticket.Category,
			"subject":     ticket.Subject,
			"status":      ticket.Status,
			"priority":    ticket.Priority,
			"assigned_to": ticket.AssignedTo,
			"notes":       ticket.Notes,
			"updated_at":  ticket.UpdatedAt,
			"closed_at":   ticket.ClosedAt,
			"closed_by":   ticket.ClosedBy,
		},
	}
	res, err := m.tickets.UpdateOne(ctx, bson.M{"_id": ticket.ID}, update)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) AppendTranscript(ctx context.Context, guildID, channelID string, msg TranscriptMessage) error {
	filter := ticketFilter(TicketQuery{GuildID: guildID, ChannelID: channelID, Statuses: liveStatuses})
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updated_at": msg.Timestamp},
	}
	res, err := m.tickets.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) GroupTickets(ctx context.Context, q TicketQuery, field Field, limit int) ([]GroupCount, error) {
	return groupCount(ctx, m.tickets, ticketFilter(q), field, limit)
}

// ---------------------------------------------------------------------------
// Warnings
// ---------------------------------------------------------------------------

func (m *Mongo) CreateWarning(ctx context.Context, warning *Warning) error {
	if warning.ID.IsZero() {
		warning.ID = primitive.NewObjectID()
	}
	if _, err := m.warnings.InsertOne(ctx, warning); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (m *Mongo) FindWarning(ctx context.Context, q WarningQuery) (Warning, error) {
	var warning Warning
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := m.warnings.FindOne(ctx, warningFilter(q), opts).Decode(&warning)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Warning{}, ErrNotFound
	}
	return warning, err
}

func (m *Mongo) FindWarnings(ctx context.Context, q WarningQuery) ([]Warning, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := m.warnings.Find(ctx, warningFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var warnings []Warning
	if err := cursor.All(ctx, &warnings); err != nil {
		return nil, err
	}
	if warnings == nil {
		warnings = []Warning{}
	}
	return warnings, nil
}

func (m *Mongo) CountWarnings(ctx context.Context, q WarningQuery) (int64, error) {
	return m.warnings.CountDocuments(ctx, warningFilter(q))
}

func (m *Mongo) UpdateWarning(ctx context.Context, warning Warning) error {
	res, err := m.warnings.ReplaceOne(ctx, bson.M{"_id": warning.ID}, warning)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeactivateWarnings(ctx context.Context, guildID, userID, by, reason string, at time.Time) (int64, error) {
	filter := bson.M{"guild_id": guildID, "user_id": userID, "active": true}
	update := bson.M{"$set": bson.M{
		"active":         false,
		"removed_by":     by,
		"removed_at":     at,
		"removed_reason": reason,
		"updated_at":     at,
	}}
	res, err := m.warnings.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m *Mongo) GroupWarnings(ctx context.Context, q WarningQuery, field Field, limit int) ([]GroupCount, error) {
	return groupCount(ctx, m.warnings, warningFilter(q), field, limit)
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

func (m *Mongo) CreateAuditLog(ctx context.Context, entry *AuditLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := m.audit.InsertOne(ctx, entry)
	return err
}

func (m *Mongo) FindAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := m.audit.Find(ctx, auditFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []AuditLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []AuditLog{}
	}
	return entries, nil
}

func (m *Mongo) CountAuditLogs(ctx context.Context, q AuditQuery) (int64, error) {
	return m.audit.CountDocuments(ctx, auditFilter(q))
}

func (m *Mongo) GroupAuditLogs(ctx context.Context, q AuditQuery, field Field, limit int) ([]GroupCount, error) {
	return groupCount(ctx, m.audit, auditFilter(q), field, limit)
}

func (m *Mongo) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.audit.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ---------------------------------------------------------------------------
// Guild config
// ---------------------------------------------------------------------------

func (m *Mongo) GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, error) {
	var cfg GuildConfig
	err := m.guilds.FindOne(ctx, bson.M{"guild_id": guildID}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return DefaultGuildConfig(guildID), nil
	}
	if err != nil {
		return GuildConfig{}, err
	}
	return cfg, nil
}

func (m *Mongo) SaveGuildConfig(ctx context.Context, cfg GuildConfig) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"ticket_config":     cfg.Tickets,
			"moderation_config": cfg.Moderation,
			"welcome_config":    cfg.Welcome,
			"autorole_config":   cfg.AutoRole,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := m.guilds.UpdateOne(ctx, bson.M{"guild_id": cfg.GuildID}, update, options.Update().SetUpsert(true))
	return mapWriteErr(err)
}

func (m *Mongo) NextSequence(ctx context.Context, guildID string, counter Counter) (int64, error) {
	if counter != CounterTickets && counter != CounterWarnings {
		return 0, fmt.Errorf("unknown counter %q", counter)
	}
	key := "counters." + string(counter)
	now := time.Now().UTC()
	update := bson.M{
		"$inc":         bson.M{key: 1},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now, "welcome_config.message": DefaultWelcomeMessage},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var cfg GuildConfig
	err := m.guilds.FindOneAndUpdate(ctx, bson.M{"guild_id": guildID}, update, opts).Decode(&cfg)
	if mongo.IsDuplicateKeyError(err) {
		// Two first-time upserts raced on the unique guild index; the
		// document exists now, so a second attempt is a plain increment.
		err = m.guilds.FindOneAndUpdate(ctx, bson.M{"guild_id": guildID}, update, opts).Decode(&cfg)
	}
	if err != nil {
		return 0, err
	}
	if counter == CounterTickets {
		return cfg.Counters.Tickets, nil
	}
	return cfg.Counters.Warnings, nil
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

func ticketFilter(q TicketQuery) bson.M {
	filter := bson.M{}
	setIf(filter, "guild_id", q.GuildID)
	setIf(filter, "user_id", q.UserID)
	setIf(filter, "channel_id", q.ChannelID)
	setIf(filter, "ticket_id", q.TicketID)
	if len(q.Statuses) == 1 {
		filter["status"] = q.Statuses[0]
	} else if len(q.Statuses) > 1 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	if q.Closed {
		filter["closed_at"] = bson.M{"$ne": nil}
	}
	setRange(filter, q.Created)
	return filter
}

func warningFilter(q WarningQuery) bson.M {
	filter := bson.M{}
	setIf(filter, "guild_id", q.GuildID)
	setIf(filter, "user_id", q.UserID)
	setIf(filter, "warning_id", q.WarningID)
	if q.Active != nil {
		filter["active"] = *q.Active
	}
	setRange(filter, q.Created)
	return filter
}

func auditFilter(q AuditQuery) bson.M {
	filter := bson.M{}
	setIf(filter, "guild_id", q.GuildID)
	setIf(filter, "action", string(q.Action))
	setIf(filter, "moderator_id", q.ModeratorID)
	setIf(filter, "target_id", q.TargetID)
	setRange(filter, q.Created)
	return filter
}

func setIf(filter bson.M, key, value string) {
	if value != "" {
		filter[key] = value
	}
}

func setRange(filter bson.M, r TimeRange) {
	if r.IsZero() {
		return
	}
	bounds := bson.M{}
	if !r.Since.IsZero() {
		bounds["$gte"] = r.Since
	}
	if !r.Until.IsZero() {
		bounds["$lt"] = r.Until
	}
	filter["created_at"] = bounds
}

func groupCount(ctx context.Context, coll *mongo.Collection, filter bson.M, field Field, limit int) ([]GroupCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + string(field)},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []GroupCount
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []GroupCount{}
	}
	return groups, nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
