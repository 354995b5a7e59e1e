package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"recipeagent"
	"recipeagent/photo"
	"recipeagent/preferences"
	"recipeagent/recipes"
	"recipeagent/session"
)

// Where the ingredients of a turn came from.
const (
	SourceImage   = "image"
	SourceText    = "text"
	SourceHistory = "history"
)

const defaultRecipeCount = 3

type imageFetcher interface {
	Fetch(ctx context.Context, ref recipeagent.ImageRef) ([]byte, error)
}

type imageValidator interface {
	Validate(data []byte) (photo.Format, error)
}

type ingredientDetector interface {
	Detect(ctx context.Context, image []byte) (recipeagent.DetectionResult, error)
}

type preferenceExtractor interface {
	Extract(ctx context.Context, text string, prior recipeagent.Preferences) (recipeagent.PreferenceDelta, error)
}

type recipeSearcher interface {
	Search(ctx context.Context, ingredients []string, prefs recipeagent.Preferences, count int) ([]recipeagent.RecipeSummary, error)
	Details(ctx context.Context, ids []string) ([]recipeagent.Recipe, error)
}

// Options wires a Coordinator. Store and Recipes are required; Fetcher and
// Detector are needed for photos. Everything else has a default.
type Options struct {
	Store       session.Store
	Recipes     recipeSearcher
	Fetcher     imageFetcher
	Validator   imageValidator
	Detector    ingredientDetector
	Extractor   preferenceExtractor
	Gate        Gate
	Synthesizer Synthesizer
	Logger      recipeagent.TurnLogger

	RecipeCount    int
	MaxImageSizeMB int

	Tracer trace.Tracer
	Meter  metric.Meter
	Now    func() time.Time
	NewID  func() string
}

// Coordinator runs one conversation turn at a time per call; it keeps no
// state between turns besides what it commits to the session store.
type Coordinator struct {
	store     session.Store
	recipes   recipeSearcher
	fetcher   imageFetcher
	validator imageValidator
	detector  ingredientDetector
	extractor preferenceExtractor
	gate      Gate
	synth     Synthesizer
	logger    recipeagent.TurnLogger

	recipeCount int
	maxImageMB  int

	tracer trace.Tracer
	m      instruments
	now    func() time.Time
	newID  func() string
}

func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("coordinator: session store is required")
	}
	if opts.Recipes == nil {
		return nil, errors.New("coordinator: recipe client is required")
	}

	c := &Coordinator{
		store:       opts.Store,
		recipes:     opts.Recipes,
		fetcher:     opts.Fetcher,
		validator:   opts.Validator,
		detector:    opts.Detector,
		extractor:   opts.Extractor,
		gate:        opts.Gate,
		synth:       opts.Synthesizer,
		logger:      opts.Logger,
		recipeCount: opts.RecipeCount,
		maxImageMB:  opts.MaxImageSizeMB,
		tracer:      opts.Tracer,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if c.maxImageMB <= 0 {
		c.maxImageMB = 5
	}
	if c.validator == nil {
		c.validator = photo.NewValidator(int64(c.maxImageMB) << 20)
	}
	if c.extractor == nil {
		c.extractor = preferences.NewKeywordExtractor()
	}
	if c.gate == nil {
		c.gate = NewKeywordGate()
	}
	if c.synth == nil {
		c.synth = NewTemplateSynthesizer()
	}
	if c.logger == nil {
		c.logger = recipeagent.NewNoOpTurnLogger()
	}
	if c.recipeCount <= 0 {
		c.recipeCount = defaultRecipeCount
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(recipeagent.TracerNameCoordinator)
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(recipeagent.MeterNameCoordinator)
	}
	c.m = newInstruments(meter)
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c, nil
}

// turn is the working state of one HandleTurn call.
type turn struct {
	start    time.Time
	text     string
	snapshot session.Session
	log      recipeagent.TurnLog

	notices     []string
	detections  map[string]recipeagent.DetectionResult
	stated      []string
	used        []string
	source      string
	delta       recipeagent.PreferenceDelta
	prefs       recipeagent.Preferences
	toolsCalled []string
}

// HandleTurn validates the request, resolves ingredients, merges
// preferences, runs the search-then-details protocol and commits the whole
// turn to the session. Nothing is committed when an error is returned.
func (c *Coordinator) HandleTurn(ctx context.Context, req recipeagent.Request) (recipeagent.Response, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.HandleTurn")
	defer span.End()

	t := &turn{start: c.now(), text: strings.TrimSpace(req.Text)}
	hasImage := !req.Image.IsZero()
	c.m.turns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("has_image", hasImage)))

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = c.newID()
	}
	t.log = recipeagent.TurnLog{SessionID: sessionID, Timestamp: t.start, Input: t.text, HasImage: hasImage}
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.Bool("turn.has_image", hasImage))

	slog.Info("COORDINATOR: Handling turn", "session_id", sessionID, "text_len", len(t.text), "has_image", hasImage)

	if t.text == "" && !hasImage {
		return c.fail(ctx, span, t, recipeagent.NewError(recipeagent.ErrValidation, "send a message or a photo of your ingredients", nil))
	}

	txn, err := c.store.Begin(ctx, sessionID)
	if err != nil {
		return c.fail(ctx, span, t, fmt.Errorf("begin session: %w", err))
	}
	// No-op once committed.
	defer txn.Abort()
	t.snapshot = txn.Session()
	t.prefs = t.snapshot.Preferences

	if !hasImage {
		ok, err := c.gate.Allow(ctx, t.text, len(t.snapshot.LastIngredients()) > 0)
		if err != nil {
			if ctx.Err() != nil {
				return c.fail(ctx, span, t, ctx.Err())
			}
			slog.Warn("COORDINATOR: Domain gate failed; treating turn as on-topic", "error", err)
			ok = true
		}
		if !ok {
			return c.refuse(ctx, span, txn, t, sessionID)
		}
	}

	if hasImage {
		out := c.resolveImage(ctx, t.snapshot, *req.Image)
		if ctx.Err() != nil {
			return c.fail(ctx, span, t, ctx.Err())
		}
		if out.err != nil {
			if t.text == "" && errors.Is(out.err, recipeagent.ErrPayloadTooLarge) {
				return c.fail(ctx, span, t, out.err)
			}
			slog.Warn("COORDINATOR: Image skipped", "error", out.err)
			span.AddEvent("Image skipped", trace.WithAttributes(attribute.String("error", out.err.Error())))
			t.notices = append(t.notices, out.notice)
		} else if len(out.result.Ingredients) == 0 {
			t.notices = append(t.notices, noIngredientsNotice)
		} else {
			t.stated, t.source = out.result.Ingredients, SourceImage
			if !out.cached {
				t.detections = map[string]recipeagent.DetectionResult{out.fingerprint: out.result}
			}
		}
	}

	if t.source == "" && t.text != "" {
		if found := ParseIngredients(t.text); len(found) > 0 {
			t.stated, t.source = found, SourceText
		}
	}
	t.used = t.stated
	if t.source == "" {
		if prior := t.snapshot.LastIngredients(); len(prior) > 0 {
			t.used, t.source = prior, SourceHistory
		}
	}

	delta, err := c.extractor.Extract(ctx, t.text, t.snapshot.Preferences)
	if err != nil {
		if ctx.Err() != nil {
			return c.fail(ctx, span, t, ctx.Err())
		}
		slog.Warn("COORDINATOR: Preference extraction failed", "error", err)
		delta = recipeagent.PreferenceDelta{}
	}
	t.delta = delta
	t.prefs = t.snapshot.Preferences.Merge(delta)

	span.AddEvent("Ingredients resolved", trace.WithAttributes(
		attribute.String("source", t.source),
		attribute.StringSlice("ingredients", t.used),
		attribute.Bool("preferences_changed", !delta.IsEmpty()),
	))
	slog.Info("COORDINATOR: Ingredients resolved", "source", t.source, "ingredients", t.used, "preferences", t.prefs)

	var reply string
	var found []recipeagent.Recipe
	if len(t.used) == 0 {
		reply = withNotices(t.notices, clarifyText)
	} else {
		found, reply, err = c.recommend(ctx, t)
		if err != nil {
			return c.fail(ctx, span, t, err)
		}
	}

	return c.commit(ctx, span, txn, t, sessionID, reply, found)
}

// recommend runs the two-step protocol. Only recipes returned by the
// details call for ids produced by the search are ever returned.
func (c *Coordinator) recommend(ctx context.Context, t *turn) ([]recipeagent.Recipe, string, error) {
	summaries, err := c.search(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, withNotices(t.notices, apologyText), nil
	}

	var found []recipeagent.Recipe
	if len(summaries) > 0 {
		ids := make([]string, 0, len(summaries))
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}

		details, err := c.details(ctx, t, ids)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			return nil, withNotices(t.notices, apologyText), nil
		}

		var dropped []string
		found, dropped = verifyDetails(ids, details)
		if len(dropped) > 0 {
			slog.Warn("COORDINATOR: Discarded recipes not returned by search", "ids", dropped)
			trace.SpanFromContext(ctx).AddEvent("Recipes discarded", trace.WithAttributes(attribute.StringSlice("ids", dropped)))
		}
	}

	reply, err := c.synth.Compose(ctx, SynthesisInput{
		Text:        t.text,
		Ingredients: t.used,
		Preferences: t.prefs,
		Recipes:     found,
		Notices:     t.notices,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		slog.Warn("COORDINATOR: Synthesizer failed; using template", "error", err)
		reply, _ = NewTemplateSynthesizer().Compose(ctx, SynthesisInput{Ingredients: t.used, Preferences: t.prefs, Recipes: found, Notices: t.notices})
	}
	return found, reply, nil
}

func (c *Coordinator) search(ctx context.Context, t *turn) ([]recipeagent.RecipeSummary, error) {
	var summaries []recipeagent.RecipeSummary
	err := c.toolCall(ctx, t, recipes.ToolSearch, recipes.SearchInput(t.used, t.prefs, c.recipeCount), func(ctx context.Context) (map[string]any, error) {
		var err error
		summaries, err = c.recipes.Search(ctx, t.used, t.prefs, c.recipeCount)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(summaries))
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
		return map[string]any{"ids": ids}, nil
	})
	return summaries, err
}

func (c *Coordinator) details(ctx context.Context, t *turn, ids []string) ([]recipeagent.Recipe, error) {
	var details []recipeagent.Recipe
	err := c.toolCall(ctx, t, recipes.ToolDetails, recipes.DetailsInput(ids), func(ctx context.Context) (map[string]any, error) {
		var err error
		details, err = c.recipes.Details(ctx, ids)
		if err != nil {
			return nil, err
		}
		got := make([]string, 0, len(details))
		for _, r := range details {
			got = append(got, r.ID)
		}
		return map[string]any{"ids": got}, nil
	})
	return details, err
}

// toolCall records span, metrics and the turn log around one recipe tool
// call.
func (c *Coordinator) toolCall(ctx context.Context, t *turn, name string, input map[string]any, call func(context.Context) (map[string]any, error)) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.ToolCall."+name)
	defer span.End()

	t.toolsCalled = append(t.toolsCalled, name)
	attrs := metric.WithAttributes(attribute.String("tool", name))
	c.m.toolCalls.Add(ctx, 1, attrs)

	start := time.Now()
	out, err := call(ctx)
	elapsed := time.Since(start)
	c.m.toolCallDuration.Record(ctx, elapsed.Seconds(), attrs)

	entry := recipeagent.ToolCallLog{Name: name, Input: input, Output: out, DurationMs: elapsed.Milliseconds()}
	if err != nil {
		entry.Error = err.Error()
		c.m.toolCallsFailed.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, "tool call failed")
		span.RecordError(err)
		slog.Error("COORDINATOR: Tool call failed", "tool", name, "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		slog.Info("COORDINATOR: Tool call succeeded", "tool", name, "output", out, "duration_ms", elapsed.Milliseconds())
	}
	t.log.ToolCalls = append(t.log.ToolCalls, entry)
	return err
}

// verifyDetails keeps the detailed recipes whose id came from the search,
// in search order and at most once each, and drops any that fail
// validation. It also returns the ids of detailed recipes that were never
// searched for.
func verifyDetails(ids []string, details []recipeagent.Recipe) ([]recipeagent.Recipe, []string) {
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}

	byID := make(map[string]recipeagent.Recipe, len(details))
	var dropped []string
	for _, r := range details {
		if !allowed[r.ID] {
			dropped = append(dropped, r.ID)
			continue
		}
		if err := r.Validate(); err != nil {
			dropped = append(dropped, r.ID)
			continue
		}
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = r
		}
	}

	kept := make([]recipeagent.Recipe, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			kept = append(kept, r)
			delete(byID, id)
		}
	}
	return kept, dropped
}

func (c *Coordinator) refuse(ctx context.Context, span trace.Span, txn *session.Txn, t *turn, sessionID string) (recipeagent.Response, error) {
	c.m.turnsRefused.Add(ctx, 1)
	span.AddEvent("Turn refused as off-topic")
	slog.Info("COORDINATOR: Refusing off-topic turn", "session_id", sessionID)
	t.log.Refused = true

	if err := ctx.Err(); err != nil {
		return c.fail(ctx, span, t, err)
	}
	now := c.now()
	err := txn.Commit(session.Delta{Turns: []recipeagent.Turn{
		{Role: recipeagent.RoleUser, Text: t.text, Timestamp: now},
		{Role: recipeagent.RoleAssistant, Text: refusalText, Timestamp: now},
	}})
	if err != nil {
		return c.fail(ctx, span, t, fmt.Errorf("commit session: %w", err))
	}

	resp := recipeagent.Response{
		SessionID:   sessionID,
		Text:        refusalText,
		Ingredients: []string{},
		Recipes:     []recipeagent.Recipe{},
		Preferences: t.snapshot.Preferences,
		ToolsCalled: []string{},
		Refused:     true,
		LatencyMs:   c.now().Sub(t.start).Milliseconds(),
	}
	c.finish(ctx, span, t, resp.Text, resp.LatencyMs)
	return resp, nil
}

func (c *Coordinator) commit(ctx context.Context, span trace.Span, txn *session.Txn, t *turn, sessionID, reply string, found []recipeagent.Recipe) (recipeagent.Response, error) {
	// A caller that has gone away gets nothing written.
	if err := ctx.Err(); err != nil {
		return c.fail(ctx, span, t, err)
	}

	now := c.now()
	userTurn := recipeagent.Turn{
		Role:             recipeagent.RoleUser,
		Text:             t.text,
		Ingredients:      t.stated,
		PreferencesDelta: t.delta,
		Timestamp:        now,
	}
	assistantTurn := recipeagent.Turn{
		Role:      recipeagent.RoleAssistant,
		Text:      reply,
		Timestamp: now,
	}
	if len(t.toolsCalled) > 0 {
		assistantTurn.Ingredients = t.used
	}
	err := txn.Commit(session.Delta{
		Turns:       []recipeagent.Turn{userTurn, assistantTurn},
		Preferences: t.delta,
		Detections:  t.detections,
	})
	if err != nil {
		return c.fail(ctx, span, t, fmt.Errorf("commit session: %w", err))
	}

	if found == nil {
		found = []recipeagent.Recipe{}
	}
	used := t.used
	if used == nil {
		used = []string{}
	}
	tools := t.toolsCalled
	if tools == nil {
		tools = []string{}
	}
	resp := recipeagent.Response{
		SessionID:   sessionID,
		Text:        reply,
		Ingredients: used,
		Recipes:     found,
		Preferences: t.prefs,
		ToolsCalled: tools,
		Notices:     t.notices,
		LatencyMs:   c.now().Sub(t.start).Milliseconds(),
	}

	t.log.IngredientSource = t.source
	t.log.Ingredients = t.used
	t.log.Preferences = t.prefs
	span.SetAttributes(attribute.Int("turn.recipes", len(found)), attribute.StringSlice("turn.tools_called", tools))
	span.SetStatus(codes.Ok, "turn completed")
	c.finish(ctx, span, t, reply, resp.LatencyMs)
	return resp, nil
}

func (c *Coordinator) fail(ctx context.Context, span trace.Span, t *turn, err error) (recipeagent.Response, error) {
	c.m.turnsFailed.Add(ctx, 1)
	span.SetStatus(codes.Error, "turn failed")
	span.RecordError(err)
	slog.Error("COORDINATOR: Turn failed", "session_id", t.log.SessionID, "error", err)

	t.log.Error = err.Error()
	c.finish(ctx, span, t, "", c.now().Sub(t.start).Milliseconds())
	return recipeagent.Response{}, err
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, t *turn, output string, latencyMs int64) {
	c.m.turnDuration.Record(ctx, float64(latencyMs)/1000)
	t.log.Output = output
	t.log.LatencyMs = latencyMs
	if err := c.logger.LogTurn(t.log); err != nil {
		slog.Warn("COORDINATOR: Failed to log turn", "error", err)
	}
}

func withNotices(notices []string, text string) string {
	if len(notices) == 0 {
		return text
	}
	return strings.Join(notices, "\n\n") + "\n\n" + text
}
