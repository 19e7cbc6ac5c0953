package redis

// retentionTTLSeconds caps how long usage and block event keys live without
// an explicit cleanup pass (90 days).
const retentionTTLSeconds = 7776000

const (
	// incrementDailyUsageScript atomically increments or creates a daily
	// usage entry. Both counters merge additively so concurrent writers
	// never lose deltas.
	incrementDailyUsageScript = `
local usage_key = KEYS[1]     -- timelimitd:usage:daily:{date}:{siteID}
local index_key = KEYS[2]     -- timelimitd:usage:daily:index:{date}

local date = ARGV[1]
local site_id = ARGV[2]
local seconds = tonumber(ARGV[3])
local opens = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local exists = redis.call('EXISTS', usage_key)

if exists == 0 then
  redis.call('HSET', usage_key,
    'date', date,
    'site_id', site_id,
    'time_spent_seconds', seconds,
    'opens', opens
  )
  redis.call('EXPIRE', usage_key, ttl)

  redis.call('SADD', index_key, site_id)
  redis.call('EXPIRE', index_key, ttl)
else
  if seconds ~= 0 then
    redis.call('HINCRBY', usage_key, 'time_spent_seconds', seconds)
  end
  if opens ~= 0 then
    redis.call('HINCRBY', usage_key, 'opens', opens)
  end
end

return 'OK'
`

	// saveRuleScript atomically writes a site rule and its index entry,
	// preserving created_at across updates.
	saveRuleScript = `
local rule_key = KEYS[1]      -- timelimitd:rule:{id}
local rules_set = KEYS[2]     -- timelimitd:rules

local id = ARGV[1]
local pattern = ARGV[2]
local time_limit = ARGV[3]
local open_limit = ARGV[4]
local enabled = ARGV[5]
local created_at = ARGV[6]
local updated_at = ARGV[7]

local existing_created = redis.call('HGET', rule_key, 'created_at')
if existing_created then
  created_at = existing_created
end

redis.call('HSET', rule_key,
  'id', id,
  'pattern', pattern,
  'daily_time_limit_seconds', time_limit,
  'daily_open_limit', open_limit,
  'enabled', enabled,
  'created_at', created_at,
  'updated_at', updated_at
)

redis.call('SADD', rules_set, id)

return 'OK'
`

	// addBlockEventScript atomically writes a block event and indexes it on
	// the time-ordered timeline.
	addBlockEventScript = `
local event_key = KEYS[1]     -- timelimitd:block:{id}
local timeline_key = KEYS[2]  -- timelimitd:blocks:timeline

local id = ARGV[1]
local score = tonumber(ARGV[2])
local timestamp = ARGV[3]
local site_id = ARGV[4]
local url = ARGV[5]
local limit_type = ARGV[6]
local reason = ARGV[7]
local ttl = tonumber(ARGV[8])

redis.call('HSET', event_key,
  'id', id,
  'timestamp', timestamp,
  'site_id', site_id,
  'url', url,
  'limit_type', limit_type,
  'reason', reason
)
redis.call('EXPIRE', event_key, ttl)

redis.call('ZADD', timeline_key, score, id)

return 'OK'
`
)
