package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

const (
	stockKeyPrefix         = "stock:"
	movementKeyPrefix      = "stock-movements:"
	deliveryKeyPrefix      = "delivery:"
	deliveryClosedPrefix   = "delivery-closed:"
	deliveryIndexPrefix    = "delivery-index:"
	deliveryItemsPrefix    = "delivery-items:"
	deliveryStatusesPrefix = "delivery-statuses:"
	itemKeyPrefix          = "delivery-item:"
	itemVersionPrefix      = "delivery-item-version:"
)

// Ledger scripts journal every balance change as "<balance>|<movement json>".

var decrementStockScript = redis.NewScript(`
local quantity = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < quantity then
	return -1
end
local balance = redis.call('DECRBY', KEYS[1], quantity)
redis.call('RPUSH', KEYS[2], balance .. '|' .. ARGV[2])
return balance
`)

var incrementStockScript = redis.NewScript(`
local balance = redis.call('INCRBY', KEYS[1], tonumber(ARGV[1]))
redis.call('RPUSH', KEYS[2], balance .. '|' .. ARGV[2])
return balance
`)

var setStockScript = redis.NewScript(`
local quantity = tonumber(ARGV[1])
local previous = tonumber(redis.call('GET', KEYS[1]) or '0')
redis.call('SET', KEYS[1], quantity)
if quantity ~= previous then
	redis.call('RPUSH', KEYS[2], quantity .. '|' .. ARGV[2])
end
return quantity - previous
`)

// KEYS: stock, movements, delivery, closed, index, item, version, list, statuses
// ARGV: quantity, identity, item id, item json, movement json, status, version
var insertItemScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 0 then
	return -3
end
if redis.call('EXISTS', KEYS[4]) == 1 then
	return -4
end
if redis.call('HEXISTS', KEYS[5], ARGV[2]) == 1 then
	return -1
end
local quantity = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < quantity then
	return -2
end
local balance = redis.call('DECRBY', KEYS[1], quantity)
redis.call('RPUSH', KEYS[2], balance .. '|' .. ARGV[5])
redis.call('HSET', KEYS[5], ARGV[2], ARGV[3])
redis.call('SET', KEYS[6], ARGV[4])
redis.call('SET', KEYS[7], ARGV[7])
redis.call('RPUSH', KEYS[8], ARGV[3])
redis.call('HSET', KEYS[9], ARGV[3], ARGV[6])
return 1
`)

// KEYS: item, version, statuses, stock, movements
// ARGV: expected version, new version, item json, item id, status, credit, movement json
var updateItemScript = redis.NewScript(`
local version = redis.call('GET', KEYS[2])
if not version then
	return -1
end
if tonumber(version) ~= tonumber(ARGV[1]) then
	return -2
end
redis.call('SET', KEYS[1], ARGV[3])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[4], ARGV[5])
local credit = tonumber(ARGV[6])
if credit > 0 then
	local balance = redis.call('INCRBY', KEYS[4], credit)
	redis.call('RPUSH', KEYS[5], balance .. '|' .. ARGV[7])
end
return 1
`)

// KEYS: closed, statuses, delivery
// ARGV: closed delivery json, settled statuses...
var closeDeliveryScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 2
end
local statuses = redis.call('HVALS', KEYS[2])
if #statuses == 0 then
	return -1
end
for _, s in ipairs(statuses) do
	local settled = false
	for i = 2, #ARGV do
		if s == ARGV[i] then
			settled = true
		end
	end
	if not settled then
		return -1
	end
end
redis.call('SET', KEYS[1], 1)
redis.call('SET', KEYS[3], ARGV[1])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
	now    func() time.Time
}

var _ port.Store = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, now: time.Now}
}

func (r *RedisAdapter) Decrement(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error) {
	if qty < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	mv, err := r.movement(key, -qty, domain.MovementDispatch, reference)
	if err != nil {
		return 0, err
	}

	balance, err := decrementStockScript.Run(ctx, r.client, []string{stockKey(key), movementKey(key)}, qty, mv).Int()
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	if balance < 0 {
		return 0, domain.ErrInsufficientStock
	}
	return balance, nil
}

func (r *RedisAdapter) Increment(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error) {
	if qty < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	mv, err := r.movement(key, qty, domain.MovementReturn, reference)
	if err != nil {
		return 0, err
	}

	balance, err := incrementStockScript.Run(ctx, r.client, []string{stockKey(key), movementKey(key)}, qty, mv).Int()
	if err != nil {
		return 0, fmt.Errorf("increment stock: %w", err)
	}
	return balance, nil
}

// SetStock journals the movement with a zero delta placeholder; the real
// delta is derived from consecutive balances when the journal is read. An
// unchanged quantity is not journalled.
func (r *RedisAdapter) SetStock(ctx context.Context, key domain.StockKey, qty int) error {
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}
	mv, err := r.movement(key, 0, domain.MovementSet, "")
	if err != nil {
		return err
	}

	if err := setStockScript.Run(ctx, r.client, []string{stockKey(key), movementKey(key)}, qty, mv).Err(); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Quantity(ctx context.Context, key domain.StockKey) (int, error) {
	n, err := r.client.Get(ctx, stockKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return n, nil
}

func (r *RedisAdapter) Movements(ctx context.Context, key domain.StockKey) ([]domain.StockMovement, error) {
	raw, err := r.client.LRange(ctx, movementKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	out := make([]domain.StockMovement, 0, len(raw))
	previous := 0
	for _, line := range raw {
		balanceStr, body, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("malformed movement %q", line)
		}
		balance, err := strconv.Atoi(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("malformed movement balance %q: %w", balanceStr, err)
		}
		var mv domain.StockMovement
		if err := json.Unmarshal([]byte(body), &mv); err != nil {
			return nil, fmt.Errorf("decode movement: %w", err)
		}
		mv.Balance = balance
		if mv.Reason == domain.MovementSet {
			mv.Delta = balance - previous
		}
		previous = balance
		out = append(out, mv)
	}
	return out, nil
}

func (r *RedisAdapter) CreateDelivery(ctx context.Context, d domain.Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	ok, err := r.client.SetNX(ctx, deliveryKeyPrefix+d.ID, body, 0).Result()
	if err != nil {
		return fmt.Errorf("save delivery: %w", err)
	}
	if !ok {
		return fmt.Errorf("delivery %s already exists", d.ID)
	}
	return nil
}

func (r *RedisAdapter) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	var d domain.Delivery
	if err := r.getJSON(ctx, deliveryKeyPrefix+id, &d); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Delivery{}, domain.ErrDeliveryNotFound
		}
		return domain.Delivery{}, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

func (r *RedisAdapter) CloseDelivery(ctx context.Context, id string, at time.Time) (domain.Delivery, error) {
	d, err := r.GetDelivery(ctx, id)
	if err != nil {
		return domain.Delivery{}, err
	}
	if d.Closed() {
		return d, nil
	}

	closed := d
	closed.CompletedAt = &at
	body, err := json.Marshal(closed)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("encode delivery: %w", err)
	}

	res, err := closeDeliveryScript.Run(ctx, r.client,
		[]string{deliveryClosedPrefix + id, deliveryStatusesPrefix + id, deliveryKeyPrefix + id},
		body, string(domain.ItemStatusReceived), string(domain.ItemStatusReturned),
	).Int()
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("close delivery: %w", err)
	}

	switch res {
	case 1:
		return closed, nil
	case 2:
		return r.GetDelivery(ctx, id)
	default:
		return domain.Delivery{}, domain.ErrDeliveryIncomplete
	}
}

func (r *RedisAdapter) InsertItem(ctx context.Context, item domain.DeliveryItem) error {
	key := item.StockKey()
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	mv, err := r.movement(key, -item.DeclaredQuantity, domain.MovementDispatch, item.ID)
	if err != nil {
		return err
	}

	res, err := insertItemScript.Run(ctx, r.client,
		[]string{
			stockKey(key),
			movementKey(key),
			deliveryKeyPrefix + item.DeliveryID,
			deliveryClosedPrefix + item.DeliveryID,
			deliveryIndexPrefix + item.DeliveryID,
			itemKeyPrefix + item.ID,
			itemVersionPrefix + item.ID,
			deliveryItemsPrefix + item.DeliveryID,
			deliveryStatusesPrefix + item.DeliveryID,
		},
		item.DeclaredQuantity, item.Item.String(), item.ID, body, mv, string(item.Status), item.Version,
	).Int()
	if err != nil {
		return fmt.Errorf("insert delivery item: %w", err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return domain.ErrDuplicateDeliveryItem
	case -2:
		return domain.ErrInsufficientStock
	case -3:
		return domain.ErrDeliveryNotFound
	case -4:
		return domain.ErrDeliveryClosed
	default:
		return fmt.Errorf("insert delivery item: unexpected script result %d", res)
	}
}

func (r *RedisAdapter) UpdateItem(ctx context.Context, item domain.DeliveryItem, expectedVersion int, credit int) error {
	key := item.StockKey()
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	mv, err := r.movement(key, credit, domain.MovementReturn, item.ID)
	if err != nil {
		return err
	}

	res, err := updateItemScript.Run(ctx, r.client,
		[]string{
			itemKeyPrefix + item.ID,
			itemVersionPrefix + item.ID,
			deliveryStatusesPrefix + item.DeliveryID,
			stockKey(key),
			movementKey(key),
		},
		expectedVersion, item.Version, body, item.ID, string(item.Status), credit, mv,
	).Int()
	if err != nil {
		return fmt.Errorf("update delivery item: %w", err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return domain.ErrItemNotFound
	case -2:
		return domain.ErrConcurrentModification
	default:
		return fmt.Errorf("update delivery item: unexpected script result %d", res)
	}
}

func (r *RedisAdapter) GetItem(ctx context.Context, id string) (domain.DeliveryItem, error) {
	var it domain.DeliveryItem
	if err := r.getJSON(ctx, itemKeyPrefix+id, &it); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DeliveryItem{}, domain.ErrItemNotFound
		}
		return domain.DeliveryItem{}, fmt.Errorf("get delivery item: %w", err)
	}
	return it, nil
}

func (r *RedisAdapter) ListItems(ctx context.Context, f port.ItemFilter) ([]domain.DeliveryItem, error) {
	ids, err := r.client.LRange(ctx, deliveryItemsPrefix+f.DeliveryID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list delivery items: %w", err)
	}
	if len(ids) == 0 {
		return []domain.DeliveryItem{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKeyPrefix + id
	}
	raw, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load delivery items: %w", err)
	}

	out := make([]domain.DeliveryItem, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var it domain.DeliveryItem
		if err := json.Unmarshal([]byte(s), &it); err != nil {
			return nil, fmt.Errorf("decode delivery item: %w", err)
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *RedisAdapter) getJSON(ctx context.Context, key string, v any) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (r *RedisAdapter) movement(key domain.StockKey, delta int, reason domain.MovementReason, reference string) (string, error) {
	body, err := json.Marshal(domain.StockMovement{
		Key:       key,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: r.now(),
	})
	if err != nil {
		return "", fmt.Errorf("encode movement: %w", err)
	}
	return string(body), nil
}

func stockKey(key domain.StockKey) string {
	return stockKeyPrefix + key.String()
}

func movementKey(key domain.StockKey) string {
	return movementKeyPrefix + key.String()
}
