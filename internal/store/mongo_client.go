package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lodgetix/reconcile/internal/domain"
)

const (
	paymentsCollection      = "payments"
	registrationsCollection = "registrations"
)

var terminalStates = []domain.MatchState{domain.MatchStateDuplicate, domain.MatchStateManualResolved}

// NewMongoClient connects to the document store using the official MongoDB
// driver and returns a Client backed by the payments and registrations
// collections.
func NewMongoClient(ctx context.Context, opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("verify store connectivity: %w", err)
	}

	return &mongoClient{
		client:  client,
		db:      client.Database(opts.Database),
		timeout: opts.Timeout,
	}, nil
}

type mongoClient struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// paymentDoc is the persisted shape of a payment record.
type paymentDoc struct {
	ID                     string               `bson:"_id"`
	SourceSystem           string               `bson:"sourceSystem"`
	ProcessorPaymentID     string               `bson:"processorPaymentId,omitempty"`
	ProcessorTransactionID string               `bson:"processorTransactionId,omitempty"`
	Amount                 primitive.Decimal128 `bson:"amount"`
	Currency               string               `bson:"currency"`
	CustomerEmail          string               `bson:"customerEmail,omitempty"`
	CustomerName           string               `bson:"customerName,omitempty"`
	OccurredAt             time.Time            `bson:"occurredAt"`
	MatchState             string               `bson:"matchState"`
	MatchedRegistrationID  string               `bson:"matchedRegistrationId,omitempty"`
	MatchConfidence        *int                 `bson:"matchConfidence,omitempty"`
	MatchMethod            string               `bson:"matchMethod,omitempty"`
	MatchDetails           []matchDetailDoc     `bson:"matchDetails,omitempty"`
	DuplicateSuspectOf     string               `bson:"duplicateSuspectOfPaymentId,omitempty"`
	ErrorReason            string               `bson:"errorReason,omitempty"`
	ResolvedBy             string               `bson:"resolvedBy,omitempty"`
	ResolutionNote         string               `bson:"resolutionNote,omitempty"`
	ResolvedAt             *time.Time           `bson:"resolvedAt,omitempty"`
}

type matchDetailDoc struct {
	FieldName         string `bson:"fieldName"`
	PaymentValue      string `bson:"paymentValue"`
	RegistrationValue string `bson:"registrationValue"`
	PointsAwarded     int    `bson:"pointsAwarded"`
}

// registrationDoc is the persisted shape of a registration record. The
// lowercased contact email supports case-insensitive candidate queries without
// a collation dependency.
type registrationDoc struct {
	ID                 string               `bson:"_id"`
	ConfirmationNumber string               `bson:"confirmationNumber"`
	LinkedPaymentIDs   []string             `bson:"linkedPaymentIds,omitempty"`
	TotalAmountPaid    primitive.Decimal128 `bson:"totalAmountPaid"`
	ContactEmail       string               `bson:"contactEmail,omitempty"`
	ContactEmailLower  string               `bson:"contactEmailLower,omitempty"`
	ContactName        string               `bson:"contactName,omitempty"`
	CreatedAt          time.Time            `bson:"createdAt"`
	ClaimedByPaymentID string               `bson:"claimedByPaymentId,omitempty"`
}

func (c *mongoClient) payments() *mongo.Collection {
	return c.db.Collection(paymentsCollection)
}

func (c *mongoClient) registrations() *mongo.Collection {
	return c.db.Collection(registrationsCollection)
}

func (c *mongoClient) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *mongoClient) UpsertPayment(ctx context.Context, p domain.Payment) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	doc, err := toPaymentDoc(p)
	if err != nil {
		return err
	}
	if doc.MatchState == "" {
		doc.MatchState = string(domain.MatchStateUnmatched)
	}

	_, err = c.payments().ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return translateErr(fmt.Errorf("upsert payment %s: %w", p.ID, err))
	}
	return nil
}

func (c *mongoClient) UpsertRegistration(ctx context.Context, r domain.Registration) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	doc, err := toRegistrationDoc(r)
	if err != nil {
		return err
	}

	_, err = c.registrations().ReplaceOne(ctx, bson.M{"_id": r.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return translateErr(fmt.Errorf("upsert registration %s: %w", r.ID, err))
	}
	return nil
}

func (c *mongoClient) PaymentByID(ctx context.Context, id string) (domain.Payment, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var doc paymentDoc
	if err := c.payments().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.Payment{}, translateErr(err)
	}
	return fromPaymentDoc(doc)
}

func (c *mongoClient) RegistrationByID(ctx context.Context, id string) (domain.Registration, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var doc registrationDoc
	if err := c.registrations().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.Registration{}, translateErr(err)
	}
	return fromRegistrationDoc(doc)
}

func (c *mongoClient) CandidateRegistrations(ctx context.Context, q CandidateQuery) ([]domain.Registration, error) {
	var clauses []bson.M

	ids := nonEmpty(q.ProcessorIDs)
	if len(ids) > 0 {
		clauses = append(clauses, bson.M{"linkedPaymentIds": bson.M{"$in": ids}})
	}
	if q.Email != "" {
		clauses = append(clauses, bson.M{"contactEmailLower": strings.ToLower(strings.TrimSpace(q.Email))})
	}
	if q.Amount.IsPositive() && !q.WindowStart.IsZero() && !q.WindowEnd.IsZero() {
		amount, err := toDecimal128(q.Amount)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, bson.M{
			"totalAmountPaid": amount,
			"createdAt":       bson.M{"$gte": q.WindowStart, "$lte": q.WindowEnd},
		})
	}

	if len(clauses) == 0 {
		return nil, nil
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		findOpts.SetLimit(int64(q.Limit))
	}

	cursor, err := c.registrations().Find(ctx, bson.M{"$or": clauses}, findOpts)
	if err != nil {
		return nil, translateErr(fmt.Errorf("candidate query: %w", err))
	}
	defer cursor.Close(ctx)

	var docs []registrationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateErr(fmt.Errorf("decode candidates: %w", err))
	}

	registrations := make([]domain.Registration, 0, len(docs))
	for _, doc := range docs {
		r, err := fromRegistrationDoc(doc)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, r)
	}
	return registrations, nil
}

func (c *mongoClient) ReprocessablePaymentIDs(ctx context.Context, q ReprocessQuery) ([]string, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	states := []string{string(domain.MatchStateUnmatched), string(domain.MatchStateError)}
	if q.IncludeMatched {
		states = append(states, string(domain.MatchStateMatched))
	}

	findOpts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		findOpts.SetLimit(int64(q.Limit))
	}

	cursor, err := c.payments().Find(ctx, bson.M{"matchState": bson.M{"$in": states}}, findOpts)
	if err != nil {
		return nil, translateErr(fmt.Errorf("reprocessable query: %w", err))
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateErr(fmt.Errorf("decode reprocessable ids: %w", err))
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// RecordMatch claims the registration with a single conditional update, then
// applies the decision to the payment under a terminal-state guard. A payment
// write failure rolls the fresh claim back so a conflict never leaves a
// dangling claim.
func (c *mongoClient) RecordMatch(ctx context.Context, rec MatchRecord) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var current struct {
		MatchState            string `bson:"matchState"`
		MatchedRegistrationID string `bson:"matchedRegistrationId"`
	}
	err := c.payments().FindOne(ctx, bson.M{"_id": rec.PaymentID},
		options.FindOne().SetProjection(bson.M{"matchState": 1, "matchedRegistrationId": 1})).Decode(&current)
	if err != nil {
		return translateErr(err)
	}
	if domain.MatchState(current.MatchState).Terminal() {
		return domain.ErrTerminalState
	}

	claimFilter := bson.M{
		"_id": rec.RegistrationID,
		"$or": []bson.M{
			{"claimedByPaymentId": bson.M{"$exists": false}},
			{"claimedByPaymentId": ""},
			{"claimedByPaymentId": rec.PaymentID},
		},
	}
	res, err := c.registrations().UpdateOne(ctx, claimFilter,
		bson.M{"$set": bson.M{"claimedByPaymentId": rec.PaymentID}})
	if err != nil {
		return translateErr(fmt.Errorf("claim registration %s: %w", rec.RegistrationID, err))
	}
	if res.MatchedCount == 0 {
		if err := c.registrations().FindOne(ctx, bson.M{"_id": rec.RegistrationID},
			options.FindOne().SetProjection(bson.M{"_id": 1})).Err(); err != nil {
			return translateErr(err)
		}
		return domain.ErrClaimConflict
	}

	if current.MatchedRegistrationID != "" && current.MatchedRegistrationID != rec.RegistrationID {
		c.releaseClaim(ctx, current.MatchedRegistrationID, rec.PaymentID)
	}

	details := make([]matchDetailDoc, 0, len(rec.Details))
	for _, d := range rec.Details {
		details = append(details, matchDetailDoc(d))
	}

	update := bson.M{
		"$set": bson.M{
			"matchState":            string(domain.MatchStateMatched),
			"matchedRegistrationId": rec.RegistrationID,
			"matchConfidence":       rec.Confidence,
			"matchMethod":           string(rec.Method),
			"matchDetails":          details,
		},
		"$unset": bson.M{
			"duplicateSuspectOfPaymentId": "",
			"errorReason":                 "",
		},
	}
	payRes, err := c.payments().UpdateOne(ctx, c.nonTerminalFilter(rec.PaymentID), update)
	if err != nil || payRes.MatchedCount == 0 {
		c.releaseClaim(ctx, rec.RegistrationID, rec.PaymentID)
		if err != nil {
			return translateErr(fmt.Errorf("record match for payment %s: %w", rec.PaymentID, err))
		}
		return domain.ErrTerminalState
	}
	return nil
}

func (c *mongoClient) RecordNoMatch(ctx context.Context, rec NoMatchRecord) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var current struct {
		MatchState            string `bson:"matchState"`
		MatchedRegistrationID string `bson:"matchedRegistrationId"`
	}
	err := c.payments().FindOne(ctx, bson.M{"_id": rec.PaymentID},
		options.FindOne().SetProjection(bson.M{"matchState": 1, "matchedRegistrationId": 1})).Decode(&current)
	if err != nil {
		return translateErr(err)
	}
	if domain.MatchState(current.MatchState).Terminal() {
		return domain.ErrTerminalState
	}

	details := make([]matchDetailDoc, 0, len(rec.Details))
	for _, d := range rec.Details {
		details = append(details, matchDetailDoc(d))
	}

	set := bson.M{
		"matchState":   string(domain.MatchStateUnmatched),
		"matchMethod":  string(domain.MatchMethodNone),
		"matchDetails": details,
	}
	unset := bson.M{
		"matchedRegistrationId":       "",
		"matchConfidence":             "",
		"errorReason":                 "",
		"duplicateSuspectOfPaymentId": "",
	}
	if rec.DuplicateSuspectOf != "" {
		set["duplicateSuspectOfPaymentId"] = rec.DuplicateSuspectOf
		delete(unset, "duplicateSuspectOfPaymentId")
	}

	res, err := c.payments().UpdateOne(ctx, c.nonTerminalFilter(rec.PaymentID),
		bson.M{"$set": set, "$unset": unset})
	if err != nil {
		return translateErr(fmt.Errorf("record no-match for payment %s: %w", rec.PaymentID, err))
	}
	if res.MatchedCount == 0 {
		return domain.ErrTerminalState
	}

	if current.MatchedRegistrationID != "" {
		c.releaseClaim(ctx, current.MatchedRegistrationID, rec.PaymentID)
	}
	return nil
}

func (c *mongoClient) RecordError(ctx context.Context, paymentID, reason string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var current struct {
		MatchedRegistrationID string `bson:"matchedRegistrationId"`
	}
	err := c.payments().FindOne(ctx, bson.M{"_id": paymentID},
		options.FindOne().SetProjection(bson.M{"matchedRegistrationId": 1})).Decode(&current)
	if err != nil {
		return translateErr(err)
	}

	res, err := c.payments().UpdateOne(ctx, c.nonTerminalFilter(paymentID), bson.M{
		"$set": bson.M{
			"matchState":  string(domain.MatchStateError),
			"matchMethod": string(domain.MatchMethodNone),
			"errorReason": reason,
		},
		"$unset": bson.M{
			"matchedRegistrationId": "",
			"matchConfidence":       "",
		},
	})
	if err != nil {
		return translateErr(fmt.Errorf("record error for payment %s: %w", paymentID, err))
	}
	if res.MatchedCount == 0 {
		return domain.ErrTerminalState
	}

	if current.MatchedRegistrationID != "" {
		c.releaseClaim(ctx, current.MatchedRegistrationID, paymentID)
	}
	return nil
}

func (c *mongoClient) RecordManualResolution(ctx context.Context, rec ManualRecord) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var current struct {
		MatchState            string `bson:"matchState"`
		MatchedRegistrationID string `bson:"matchedRegistrationId"`
	}
	err := c.payments().FindOne(ctx, bson.M{"_id": rec.PaymentID},
		options.FindOne().SetProjection(bson.M{"matchState": 1, "matchedRegistrationId": 1})).Decode(&current)
	if err != nil {
		return translateErr(err)
	}
	if domain.MatchState(current.MatchState).Terminal() {
		return domain.ErrTerminalState
	}

	set := bson.M{
		"matchMethod":    string(domain.MatchMethodManual),
		"resolvedBy":     rec.Operator,
		"resolutionNote": rec.Note,
		"resolvedAt":     rec.ResolvedAt,
	}
	unset := bson.M{
		"matchConfidence":             "",
		"errorReason":                 "",
		"duplicateSuspectOfPaymentId": "",
	}

	if rec.MarkDuplicate {
		set["matchState"] = string(domain.MatchStateDuplicate)
		unset["matchedRegistrationId"] = ""
	} else {
		claimFilter := bson.M{
			"_id": rec.RegistrationID,
			"$or": []bson.M{
				{"claimedByPaymentId": bson.M{"$exists": false}},
				{"claimedByPaymentId": ""},
				{"claimedByPaymentId": rec.PaymentID},
			},
		}
		res, err := c.registrations().UpdateOne(ctx, claimFilter,
			bson.M{"$set": bson.M{"claimedByPaymentId": rec.PaymentID}})
		if err != nil {
			return translateErr(fmt.Errorf("claim registration %s: %w", rec.RegistrationID, err))
		}
		if res.MatchedCount == 0 {
			if err := c.registrations().FindOne(ctx, bson.M{"_id": rec.RegistrationID},
				options.FindOne().SetProjection(bson.M{"_id": 1})).Err(); err != nil {
				return translateErr(err)
			}
			return domain.ErrClaimConflict
		}
		set["matchState"] = string(domain.MatchStateManualResolved)
		set["matchedRegistrationId"] = rec.RegistrationID
	}

	res, err := c.payments().UpdateOne(ctx, c.nonTerminalFilter(rec.PaymentID),
		bson.M{"$set": set, "$unset": unset})
	if err != nil || res.MatchedCount == 0 {
		if !rec.MarkDuplicate {
			c.releaseClaim(ctx, rec.RegistrationID, rec.PaymentID)
		}
		if err != nil {
			return translateErr(fmt.Errorf("record manual resolution for payment %s: %w", rec.PaymentID, err))
		}
		return domain.ErrTerminalState
	}

	if current.MatchedRegistrationID != "" && current.MatchedRegistrationID != rec.RegistrationID {
		c.releaseClaim(ctx, current.MatchedRegistrationID, rec.PaymentID)
	}
	return nil
}

func (c *mongoClient) MatchStatistics(ctx context.Context, opts StatisticsOptions) (domain.MatchStatistics, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	stats := domain.MatchStatistics{
		ByMethod: make(map[domain.MatchMethod]int64),
	}

	stateCounts, err := c.groupCounts(ctx, "$matchState")
	if err != nil {
		return domain.MatchStatistics{}, err
	}
	for state, count := range stateCounts {
		stats.Total += count
		switch domain.MatchState(state) {
		case domain.MatchStateMatched:
			stats.Matched = count
		case domain.MatchStateUnmatched:
			stats.Unmatched = count
		case domain.MatchStateError:
			stats.Errors = count
		case domain.MatchStateDuplicate:
			stats.Duplicates = count
		case domain.MatchStateManualResolved:
			stats.ManuallyResolved = count
		}
	}

	methodCounts, err := c.groupCounts(ctx, "$matchMethod")
	if err != nil {
		return domain.MatchStatistics{}, err
	}
	for method, count := range methodCounts {
		if method == "" {
			continue
		}
		stats.ByMethod[domain.MatchMethod(method)] = count
	}

	matchedFilter := bson.M{"matchState": string(domain.MatchStateMatched)}
	high, err := c.countPayments(ctx, withConfidenceRange(matchedFilter, opts.HighConfidence, 0))
	if err != nil {
		return domain.MatchStatistics{}, err
	}
	medium, err := c.countPayments(ctx, withConfidenceRange(matchedFilter, opts.AcceptThreshold, opts.HighConfidence))
	if err != nil {
		return domain.MatchStatistics{}, err
	}
	low, err := c.countPayments(ctx, withConfidenceRange(matchedFilter, 0, opts.AcceptThreshold))
	if err != nil {
		return domain.MatchStatistics{}, err
	}
	stats.ByConfidence = domain.ConfidenceBuckets{High: high, Medium: medium, Low: low}

	return stats, nil
}

func (c *mongoClient) VerifyConnectivity(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *mongoClient) nonTerminalFilter(paymentID string) bson.M {
	states := make([]string, 0, len(terminalStates))
	for _, s := range terminalStates {
		states = append(states, string(s))
	}
	return bson.M{"_id": paymentID, "matchState": bson.M{"$nin": states}}
}

// releaseClaim clears a claim held by paymentID. Failures are swallowed: a
// stale claim is repaired by the next successful write for that registration.
func (c *mongoClient) releaseClaim(ctx context.Context, registrationID, paymentID string) {
	_, _ = c.registrations().UpdateOne(ctx,
		bson.M{"_id": registrationID, "claimedByPaymentId": paymentID},
		bson.M{"$unset": bson.M{"claimedByPaymentId": ""}})
}

func (c *mongoClient) groupCounts(ctx context.Context, field string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := c.payments().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translateErr(fmt.Errorf("aggregate %s: %w", field, err))
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID    *string `bson:"_id"`
		Count int64   `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, translateErr(fmt.Errorf("decode %s counts: %w", field, err))
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		key := ""
		if row.ID != nil {
			key = *row.ID
		}
		counts[key] = row.Count
	}
	return counts, nil
}

func (c *mongoClient) countPayments(ctx context.Context, filter bson.M) (int64, error) {
	count, err := c.payments().CountDocuments(ctx, filter)
	if err != nil {
		return 0, translateErr(fmt.Errorf("count payments: %w", err))
	}
	return count, nil
}

// withConfidenceRange returns base extended with min <= matchConfidence < max;
// max 0 means unbounded.
func withConfidenceRange(base bson.M, min, max int) bson.M {
	filter := bson.M{}
	for k, v := range base {
		filter[k] = v
	}
	rangeFilter := bson.M{"$gte": min}
	if max > 0 {
		rangeFilter["$lt"] = max
	}
	filter["matchConfidence"] = rangeFilter
	return filter
}

func toPaymentDoc(p domain.Payment) (paymentDoc, error) {
	amount, err := toDecimal128(p.Amount)
	if err != nil {
		return paymentDoc{}, err
	}

	details := make([]matchDetailDoc, 0, len(p.MatchDetails))
	for _, d := range p.MatchDetails {
		details = append(details, matchDetailDoc(d))
	}

	return paymentDoc{
		ID:                     p.ID,
		SourceSystem:           string(p.SourceSystem),
		ProcessorPaymentID:     p.ProcessorPaymentID,
		ProcessorTransactionID: p.ProcessorTransactionID,
		Amount:                 amount,
		Currency:               p.Currency,
		CustomerEmail:          p.CustomerEmail,
		CustomerName:           p.CustomerName,
		OccurredAt:             p.OccurredAt,
		MatchState:             string(p.MatchState),
		MatchedRegistrationID:  p.MatchedRegistrationID,
		MatchConfidence:        p.MatchConfidence,
		MatchMethod:            string(p.MatchMethod),
		MatchDetails:           details,
		DuplicateSuspectOf:     p.DuplicateSuspectOf,
		ErrorReason:            p.ErrorReason,
		ResolvedBy:             p.ResolvedBy,
		ResolutionNote:         p.ResolutionNote,
		ResolvedAt:             p.ResolvedAt,
	}, nil
}

func fromPaymentDoc(doc paymentDoc) (domain.Payment, error) {
	amount, err := fromDecimal128(doc.Amount)
	if err != nil {
		return domain.Payment{}, err
	}

	details := make([]domain.MatchDetail, 0, len(doc.MatchDetails))
	for _, d := range doc.MatchDetails {
		details = append(details, domain.MatchDetail(d))
	}
	if len(details) == 0 {
		details = nil
	}

	return domain.Payment{
		ID:                     doc.ID,
		SourceSystem:           domain.SourceSystem(doc.SourceSystem),
		ProcessorPaymentID:     doc.ProcessorPaymentID,
		ProcessorTransactionID: doc.ProcessorTransactionID,
		Amount:                 amount,
		Currency:               doc.Currency,
		CustomerEmail:          doc.CustomerEmail,
		CustomerName:           doc.CustomerName,
		OccurredAt:             doc.OccurredAt,
		MatchState:             domain.MatchState(doc.MatchState),
		MatchedRegistrationID:  doc.MatchedRegistrationID,
		MatchConfidence:        doc.MatchConfidence,
		MatchMethod:            domain.MatchMethod(doc.MatchMethod),
		MatchDetails:           details,
		DuplicateSuspectOf:     doc.DuplicateSuspectOf,
		ErrorReason:            doc.ErrorReason,
		ResolvedBy:             doc.ResolvedBy,
		ResolutionNote:         doc.ResolutionNote,
		ResolvedAt:             doc.ResolvedAt,
	}, nil
}

func toRegistrationDoc(r domain.Registration) (registrationDoc, error) {
	amount, err := toDecimal128(r.TotalAmountPaid)
	if err != nil {
		return registrationDoc{}, err
	}

	return registrationDoc{
		ID:                 r.ID,
		ConfirmationNumber: r.ConfirmationNumber,
		LinkedPaymentIDs:   r.LinkedPaymentIDs,
		TotalAmountPaid:    amount,
		ContactEmail:       r.ContactEmail,
		ContactEmailLower:  strings.ToLower(strings.TrimSpace(r.ContactEmail)),
		ContactName:        r.ContactName,
		CreatedAt:          r.CreatedAt,
		ClaimedByPaymentID: r.ClaimedByPaymentID,
	}, nil
}

func fromRegistrationDoc(doc registrationDoc) (domain.Registration, error) {
	amount, err := fromDecimal128(doc.TotalAmountPaid)
	if err != nil {
		return domain.Registration{}, err
	}

	return domain.Registration{
		ID:                 doc.ID,
		ConfirmationNumber: doc.ConfirmationNumber,
		LinkedPaymentIDs:   doc.LinkedPaymentIDs,
		TotalAmountPaid:    amount,
		ContactEmail:       doc.ContactEmail,
		ContactName:        doc.ContactName,
		CreatedAt:          doc.CreatedAt,
		ClaimedByPaymentID: doc.ClaimedByPaymentID,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	parsed, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert amount %s: %w", d.String(), err)
	}
	return parsed, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse stored amount %s: %w", v.String(), err)
	}
	return parsed, nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrStorageTimeout, err)
	default:
		return err
	}
}
