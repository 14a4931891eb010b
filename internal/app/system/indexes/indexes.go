// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
Errors are aggregated so every problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"donors", ensureDonors},
		{"users", ensureUsers},
		{"credentials", ensureCredentials},
		{"oauth_states", ensureOAuthStates},
		{"audit_events", ensureAuditEvents},
	}

	var problems []string
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconciler: bring one collection's indexes to the desired set               */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

// Mongo/DocDB return IndexOptionsConflict when an index with the same keys
// already exists under a different name or with different options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

type desired struct {
	model  mongo.IndexModel
	name   string
	unique bool
	sig    string
}

func describe(m mongo.IndexModel) desired {
	d := desired{model: m, sig: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		d.unique = isUnique(m.Options.Unique)
	}
	return d
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	for _, m := range models {
		if err := ensureIndex(ctx, coll, describe(m)); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func ensureIndex(ctx context.Context, coll *mongo.Collection, d desired) error {
	start := time.Now()
	log := zap.L().With(
		zap.String("collection", coll.Name()),
		zap.String("name", d.name),
		zap.String("keys", d.sig),
		zap.Bool("unique", d.unique))
	log.Info("ensuring index")

	if ex, ok := listExisting(ctx, coll)[d.sig]; ok {
		if d.unique == isUnique(ex.Unique) && (d.name == "" || ex.Name == d.name) {
			log.Info("reusing existing index",
				zap.String("existing", ex.Name),
				zap.String("took", time.Since(start).String()))
			return nil
		}
		// Name or uniqueness differs: drop and recreate.
		return recreate(ctx, coll, ex.Name, d, log, start)
	}

	created, err := coll.Indexes().CreateOne(ctx, d.model)
	if err == nil {
		log.Info("index ensured",
			zap.String("created_name", created),
			zap.String("took", time.Since(start).String()))
		return nil
	}
	if isOptionsConflictErr(err) {
		if ex, ok := listExisting(ctx, coll)[d.sig]; ok {
			if d.unique == isUnique(ex.Unique) {
				log.Info("reusing existing index (post-conflict)",
					zap.String("existing", ex.Name),
					zap.String("took", time.Since(start).String()))
				return nil
			}
			return recreate(ctx, coll, ex.Name, d, log, start)
		}
	}
	log.Warn("index ensure failed",
		zap.String("took", time.Since(start).String()),
		zap.Error(err))
	return fmt.Errorf("%s(%s): %v", coll.Name(), d.name, err)
}

func recreate(ctx context.Context, coll *mongo.Collection, existing string, d desired, log *zap.Logger, start time.Time) error {
	if _, err := coll.Indexes().DropOne(ctx, existing); err != nil {
		log.Warn("drop existing index failed", zap.String("existing", existing), zap.Error(err))
		return fmt.Errorf("%s(%s): drop failed: %v", coll.Name(), d.name, err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, d.model); err != nil {
		if wafflemongo.IsDup(err) && d.unique {
			return fmt.Errorf("%s(%s): cannot create unique index (duplicates present)%s",
				coll.Name(), d.name, duplicateHint(coll.Name(), d.sig))
		}
		return fmt.Errorf("%s(%s): %v", coll.Name(), d.name, err)
	}
	log.Info("index dropped and recreated",
		zap.String("from", existing),
		zap.String("took", time.Since(start).String()))
	return nil
}

func duplicateHint(coll, sig string) string {
	if !strings.Contains(sig, "email_ci:1") {
		return ""
	}
	return fmt.Sprintf(" - duplicates exist on %s.email_ci. Example finder:\n"+
		`db.%s.aggregate([{ $group: { _id: "$email_ci", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`,
		coll, coll)
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureDonors(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("donors"), []mongo.IndexModel{
		// Email is unique across donors, case-insensitively. This closes the
		// check-then-write race in create/update.
		{
			Keys:    bson.D{{Key: "email_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_donors_emailci"),
		},
		// Default list ordering, with and without the active filter.
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_donors_createdat_id"),
		},
		{
			Keys:    bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_donors_active_createdat_id"),
		},
		// Name prefix search.
		{
			Keys:    bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_donors_fullnameci_id"),
		},
		// Dashboard counts.
		{
			Keys:    bson.D{{Key: "donor_type", Value: 1}, {Key: "is_active", Value: 1}},
			Options: options.Index().SetName("idx_donors_type_active"),
		},
	})
}

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("users"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}},
			Options: options.Index().SetName("idx_users_role_active"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_users_email"),
		},
	})
}

func ensureCredentials(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("credentials"), []mongo.IndexModel{
		// One credential per email across providers. Twitter may not return an
		// email, so only string values participate.
		{
			Keys: bson.D{{Key: "email_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_credentials_emailci").
				SetPartialFilterExpression(bson.M{"email_ci": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "provider_subject", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_credentials_provider_subject").
				SetPartialFilterExpression(bson.M{"provider_subject": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "reset_token_hash", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_credentials_reset_token"),
		},
	})
}

func ensureOAuthStates(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("oauth_states"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_oauth_state"),
		},
		// TTL cleanup of abandoned sign-in attempts.
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_oauth_ttl"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_audit_createdat_id"),
		},
		{
			Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_actor_createdat"),
		},
		{
			Keys:    bson.D{{Key: "target_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_target_createdat"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_category_type_createdat"),
		},
	})
}
