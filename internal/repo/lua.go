package repo

import (
	"github.com/redis/go-redis/v9"
)

// ScriptSaveIfNewer stores a flag document unless the stored copy
// carries a later updatedAtMs (last-writer-wins across replicas and the
// pull source). Returns 1 when the write happened, 0 when it was stale.
var ScriptSaveIfNewer = redis.NewScript(`
-- KEYS[1] = flag key
-- ARGV[1] = flag JSON
-- ARGV[2] = updatedAtMs of the incoming flag

local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and tonumber(decoded.updatedAtMs or 0) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)
