package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestIncrementDailyUsageScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name            string
		date            string
		siteID          string
		seconds         int64
		opens           int64
		existingSeconds int64
		existingOpens   int64
		expectedSeconds int64
		expectedOpens   int64
	}{
		{
			name:            "create new usage entry",
			date:            "2025-01-01",
			siteID:          "site-1",
			seconds:         60,
			opens:           1,
			expectedSeconds: 60,
			expectedOpens:   1,
		},
		{
			name:            "increment existing entry",
			date:            "2025-01-01",
			siteID:          "site-2",
			seconds:         30,
			opens:           0,
			existingSeconds: 90,
			existingOpens:   2,
			expectedSeconds: 120,
			expectedOpens:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usageKey := "timelimitd:usage:daily:" + tt.date + ":" + tt.siteID
			indexKey := "timelimitd:usage:daily:index:" + tt.date

			// Pre-populate existing usage if needed
			if tt.existingSeconds > 0 || tt.existingOpens > 0 {
				client.HSet(ctx, usageKey,
					"date", tt.date,
					"site_id", tt.siteID,
					"time_spent_seconds", tt.existingSeconds,
					"opens", tt.existingOpens,
				)
				client.Expire(ctx, usageKey, retentionTTLSeconds*time.Second)
				client.SAdd(ctx, indexKey, tt.siteID)
				client.Expire(ctx, indexKey, retentionTTLSeconds*time.Second)
			}

			result := client.Eval(ctx, incrementDailyUsageScript, []string{
				usageKey,
				indexKey,
			}, tt.date, tt.siteID, tt.seconds, tt.opens, retentionTTLSeconds)

			if result.Err() != nil {
				t.Fatalf("Script execution failed: %v", result.Err())
			}

			data := client.HGetAll(ctx, usageKey)
			if data.Err() != nil {
				t.Fatalf("Failed to get usage data: %v", data.Err())
			}

			usageData := data.Val()
			if usageData["date"] != tt.date {
				t.Errorf("Expected date=%s, got %s", tt.date, usageData["date"])
			}
			if usageData["site_id"] != tt.siteID {
				t.Errorf("Expected site_id=%s, got %s", tt.siteID, usageData["site_id"])
			}

			seconds := client.HGet(ctx, usageKey, "time_spent_seconds")
			actualSeconds, err := seconds.Int64()
			if err != nil {
				t.Fatalf("Failed to parse time_spent_seconds: %v", err)
			}
			if actualSeconds != tt.expectedSeconds {
				t.Errorf("Expected time_spent_seconds=%d, got %d", tt.expectedSeconds, actualSeconds)
			}

			opens := client.HGet(ctx, usageKey, "opens")
			actualOpens, err := opens.Int64()
			if err != nil {
				t.Fatalf("Failed to parse opens: %v", err)
			}
			if actualOpens != tt.expectedOpens {
				t.Errorf("Expected opens=%d, got %d", tt.expectedOpens, actualOpens)
			}

			isMember := client.SIsMember(ctx, indexKey, tt.siteID)
			if isMember.Err() != nil {
				t.Fatalf("Failed to check index membership: %v", isMember.Err())
			}
			if !isMember.Val() {
				t.Error("Expected site to be in the date index")
			}

			ttl := client.TTL(ctx, usageKey)
			if ttl.Err() != nil {
				t.Fatalf("Failed to get TTL: %v", ttl.Err())
			}
			if ttl.Val() <= 0 {
				t.Error("Expected TTL to be set on usage key")
			}
		})
	}
}

func TestSaveRuleScript_PreservesCreatedAt(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	ruleKey := "timelimitd:rule:rule-1"
	rulesSet := "timelimitd:rules"
	originalCreated := "2024-01-01T00:00:00Z"

	result := client.Eval(ctx, saveRuleScript, []string{ruleKey, rulesSet},
		"rule-1", "reddit.com", 1800, 5, "1", originalCreated, originalCreated)
	if result.Err() != nil {
		t.Fatalf("Failed to create rule: %v", result.Err())
	}

	// Save again with a different created_at
	result = client.Eval(ctx, saveRuleScript, []string{ruleKey, rulesSet},
		"rule-1", "reddit.com/r/all", 3600, 10, "0", "2025-06-01T00:00:00Z", "2025-06-01T00:00:00Z")
	if result.Err() != nil {
		t.Fatalf("Failed to update rule: %v", result.Err())
	}

	createdAt := client.HGet(ctx, ruleKey, "created_at")
	if createdAt.Err() != nil {
		t.Fatalf("Failed to get created_at: %v", createdAt.Err())
	}
	if createdAt.Val() != originalCreated {
		t.Errorf("Expected created_at to be preserved as %s, got %s", originalCreated, createdAt.Val())
	}

	pattern := client.HGet(ctx, ruleKey, "pattern")
	if pattern.Val() != "reddit.com/r/all" {
		t.Errorf("Expected pattern to be updated, got %s", pattern.Val())
	}

	enabled := client.HGet(ctx, ruleKey, "enabled")
	if enabled.Val() != "0" {
		t.Errorf("Expected enabled=0 after update, got %s", enabled.Val())
	}

	isMember := client.SIsMember(ctx, rulesSet, "rule-1")
	if !isMember.Val() {
		t.Error("Rule should be in rules set")
	}
}

func TestAddBlockEventScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	eventKey := "timelimitd:block:event-1"
	timelineKey := "timelimitd:blocks:timeline"
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	result := client.Eval(ctx, addBlockEventScript, []string{eventKey, timelineKey},
		"event-1", ts.UnixNano(), ts.Format(time.RFC3339Nano),
		"site-1", "https://reddit.com/", "time",
		"You have spent your daily 30 minutes on this page.", retentionTTLSeconds)
	if result.Err() != nil {
		t.Fatalf("Script execution failed: %v", result.Err())
	}

	data := client.HGetAll(ctx, eventKey)
	if data.Err() != nil {
		t.Fatalf("Failed to get event data: %v", data.Err())
	}
	eventData := data.Val()
	if eventData["site_id"] != "site-1" {
		t.Errorf("Expected site_id=site-1, got %s", eventData["site_id"])
	}
	if eventData["limit_type"] != "time" {
		t.Errorf("Expected limit_type=time, got %s", eventData["limit_type"])
	}

	score := client.ZScore(ctx, timelineKey, "event-1")
	if score.Err() != nil {
		t.Fatalf("Failed to get timeline score: %v", score.Err())
	}
	if int64(score.Val()) != ts.UnixNano() {
		t.Errorf("Expected score %d, got %f", ts.UnixNano(), score.Val())
	}

	ttl := client.TTL(ctx, eventKey)
	if ttl.Val() <= 0 {
		t.Error("Expected TTL to be set on event key")
	}
}
