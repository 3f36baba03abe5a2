package discordia

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// ReconcileReport lists the entities a reconciliation pass created.
// Categories and channels that already existed are not reported.
type ReconcileReport struct {
	CreatedCategories []Category `json:"created_categories"`
	CreatedChannels   []Channel  `json:"created_channels"`
}

// Empty reports whether the pass created anything.
func (r ReconcileReport) Empty() bool {
	return len(r.CreatedCategories) == 0 && len(r.CreatedChannels) == 0
}

func (r ReconcileReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("created_categories", len(r.CreatedCategories)),
		slog.Int("created_channels", len(r.CreatedChannels)),
	)
}

// Reconciler converges live Discord structure toward a template's desired
// structure. It only ever creates - entities absent from the template are
// never deleted or renamed.
//
// Each pass re-derives "already exists" by name against the state store,
// so the reconciler is idempotent and retry-safe: a pass that fails
// partway simply leaves the still-missing entities for the next pass.
type Reconciler struct {
	store    StateStore
	registry *EntityRegistry
	serverID string
	logger   *slog.Logger

	// now is swapped in tests to pin pattern expansion to a fixed date
	now func() time.Time
}

func NewReconciler(
	store StateStore,
	registry *EntityRegistry,
	serverID string,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		registry: registry,
		serverID: serverID,
		logger:   logger.With(loggerNameKey, "reconciler"),
		now:      time.Now,
	}
}

// Reconcile runs one pass: expand the template's patterns against the
// current time, diff the result against observed state by name, and issue
// create calls for anything missing - categories first, so channel
// creations can reference the resulting IDs.
//
// A failure creating one entity is logged and skipped; the pass continues
// with the rest. Only context cancellation aborts the pass early.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	guild GuildManager,
	template ServerTemplate,
) (ReconcileReport, error) {
	var report ReconcileReport

	expanded := template.Expand(r.now())
	r.logger.Info(
		"starting reconciliation",
		"server_id", r.serverID,
		"categories", len(expanded.Categories),
		"uncategorized_channels", len(expanded.UncategorizedChannels),
	)

	for _, categoryTemplate := range expanded.Categories {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.reconcileCategory(
			ctx,
			guild,
			categoryTemplate,
			&report,
		); err != nil {
			return report, err
		}
	}

	for _, channelTemplate := range expanded.UncategorizedChannels {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.reconcileChannel(ctx, guild, channelTemplate, "", &report)
	}

	r.logger.Info("reconciliation complete", "report", report)
	return report, nil
}

// reconcileCategory ensures the category exists, then reconciles its
// channels. If the category is missing and creation fails, its channels
// are skipped for this pass (they'd have no parent to reference) and
// retried next pass.
func (r *Reconciler) reconcileCategory(
	ctx context.Context,
	guild GuildManager,
	template CategoryTemplate,
	report *ReconcileReport,
) error {
	category, err := r.registry.CategoryByName(template.Name, r.serverID)
	if err != nil {
		created, createErr := guild.CreateCategory(
			ctx,
			template.Name,
			template.Position,
		)
		if createErr != nil {
			r.logger.Error(
				"failed to create category",
				tint.Err(createErr),
				"name", template.Name,
				"server_id", r.serverID,
			)
			return nil
		}
		if saveErr := r.store.SaveCategory(created); saveErr != nil {
			r.logger.Error(
				"failed to save created category",
				tint.Err(saveErr),
				"category", created,
			)
		}
		r.logger.Info("created category", "category", created)
		report.CreatedCategories = append(report.CreatedCategories, created)
		category = created
	}

	for _, channelTemplate := range template.Channels {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.reconcileChannel(ctx, guild, channelTemplate, category.ID, report)
	}
	return nil
}

// reconcileChannel ensures a single channel exists. Name matching is
// scoped to the server: a channel observed under a different ID than the
// template expects still counts as existing - the name match is trusted
// and no duplicate is created.
func (r *Reconciler) reconcileChannel(
	ctx context.Context,
	guild GuildManager,
	template ChannelTemplate,
	categoryID string,
	report *ReconcileReport,
) {
	if _, err := r.registry.ChannelByName(template.Name, r.serverID); err == nil {
		r.logger.Debug("channel exists", "name", template.Name)
		return
	}

	created, err := r.createChannel(ctx, guild, template, categoryID)
	if err != nil {
		r.logger.Error(
			"failed to create channel",
			tint.Err(err),
			"name", template.Name,
			"kind", string(template.Kind),
			"category_id", categoryID,
			"server_id", r.serverID,
		)
		return
	}

	if saveErr := r.store.SaveChannel(created); saveErr != nil {
		r.logger.Error(
			"failed to save created channel",
			tint.Err(saveErr),
			"channel", created,
		)
	}
	r.logger.Info("created channel", "channel", created)
	report.CreatedChannels = append(report.CreatedChannels, created)
}

func (r *Reconciler) createChannel(
	ctx context.Context,
	guild GuildManager,
	template ChannelTemplate,
	categoryID string,
) (Channel, error) {
	switch template.Kind {
	case ChannelKindText:
		return guild.CreateTextChannel(ctx, template, categoryID)
	case ChannelKindVoice:
		return guild.CreateVoiceChannel(ctx, template, categoryID)
	default:
		return Channel{}, fmt.Errorf(
			"unknown channel kind %q for channel %q",
			template.Kind,
			template.Name,
		)
	}
}
