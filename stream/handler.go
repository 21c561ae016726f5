// Package stream turns DynamoDB stream records of the entity table into
// entity changes.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/backend/dynamo"
	"github.com/jacentio/canopy/store"
)

// Op is the kind of change made to an entity.
type Op int

const (
	// OpUpsert means the entity was created or replaced.
	OpUpsert Op = iota + 1
	// OpDelete means the entity was destroyed.
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// Change is one entity change read from the stream. For deletes, Entity
// holds the last stored properties.
type Change struct {
	Op     Op
	Entity *store.Entity
}

// Handler processes DynamoDB stream events and dispatches changes to the
// listeners registered for the entity's kind.
type Handler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}

// HandleChanges processes a batch of stream records in order.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")

	var op Op
	var image map[string]events.DynamoDBAttributeValue

	switch record.EventName {
	case "INSERT":
		// A soft delete of a missing key inserts a bare, already deleted item.
		if newTTL != 0 {
			return nil
		}
		op, image = OpUpsert, record.Change.NewImage

	case "MODIFY":
		switch {
		case oldTTL == 0 && newTTL != 0:
			op, image = OpDelete, record.Change.NewImage
		case newTTL != 0:
			return nil
		default:
			op, image = OpUpsert, record.Change.NewImage
		}

	case "REMOVE":
		// Expiry of a soft-deleted item was already reported when the TTL was set.
		if oldTTL != 0 {
			return nil
		}
		op, image = OpDelete, record.Change.OldImage

	default:
		return nil
	}

	kind := getStringAttr(image, "kind")
	if kind == "" || !h.registry.HasListeners(kind) {
		return nil
	}

	e, err := decodeImage(image)
	if err != nil {
		return fmt.Errorf("decode %s image: %w", kind, err)
	}

	change := Change{Op: op, Entity: e}
	id, _ := e.ID()
	h.logger.Debug("dispatching change",
		"kind", kind,
		"id", id,
		"op", op.String(),
	)

	for _, l := range h.registry.ListenersOf(kind) {
		if err := l(ctx, change); err != nil {
			return fmt.Errorf("%s %s/%d: %w", op, kind, id, err)
		}
	}
	return nil
}

// decodeImage maps a stream image through the same path as a stored item.
func decodeImage(image map[string]events.DynamoDBAttributeValue) (*store.Entity, error) {
	w, err := dynamo.DecodeItem(ConvertImage(image))
	if err != nil {
		return nil, err
	}
	return store.FromWire(w)
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertImage converts a DynamoDB stream image to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertAttr(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertAttr(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, elem := range v.List() {
			if av := convertAttr(elem); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
