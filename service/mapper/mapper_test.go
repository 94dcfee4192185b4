/*
 * @module service/mapper/mapper_test
 * @description Entity mapper tests: required fields, date coercion, enums, determinism
 * @architecture Test layer
 * @dependencies testing, testify, gopter
 * @refs mapper.go
 */

package mapper

import (
	"fmt"
	"testing"

	"backoffice-service/service/meta"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServiceRequest(t *testing.T) {
	raw := RawRecord{
		Kind:     meta.EntityKindServiceRequest,
		SourceID: 101,
		Fields: map[string]interface{}{
			"dueDate":     "05-01-2026",
			"status":      "Novo",
			"provider_id": "prov-1",
			"priority":    "3",
		},
	}

	entity, err := Map(raw, meta.EntityKindServiceRequest)
	require.NoError(t, err)

	assert.Equal(t, "101", entity.SourceID)
	assert.Equal(t, meta.EntityKindServiceRequest, entity.Kind)
	assert.Empty(t, entity.ID, "mapper must not assign ids")
	assert.Equal(t, "novo", entity.Payload["status"])
	assert.Equal(t, "2026-01-05", entity.Payload["dueDate"])
	assert.Equal(t, float64(3), entity.Payload["priority"])
	require.NotNil(t, entity.ProviderID)
	assert.Equal(t, "prov-1", *entity.ProviderID)
}

func TestMapMissingFields(t *testing.T) {
	testCases := []struct {
		name  string
		kind  string
		raw   RawRecord
		field string
	}{
		{
			name:  "no source id",
			kind:  meta.EntityKindServiceRequest,
			raw:   RawRecord{Fields: map[string]interface{}{"status": "novo"}},
			field: "sourceId",
		},
		{
			name:  "blank source id",
			kind:  meta.EntityKindClient,
			raw:   RawRecord{SourceID: "  ", Fields: map[string]interface{}{"name": "Ana"}},
			field: "sourceId",
		},
		{
			name:  "service request without status",
			kind:  meta.EntityKindServiceRequest,
			raw:   RawRecord{SourceID: "1", Fields: map[string]interface{}{"dueDate": "05-01-2026"}},
			field: "status",
		},
		{
			name:  "billing without amount",
			kind:  meta.EntityKindBillingProcess,
			raw:   RawRecord{SourceID: "1", Fields: map[string]interface{}{"status": "pago"}},
			field: "amount",
		},
		{
			name:  "client with empty name",
			kind:  meta.EntityKindClient,
			raw:   RawRecord{SourceID: "1", Fields: map[string]interface{}{"name": ""}},
			field: "name",
		},
		{
			name:  "recurrence without start date",
			kind:  meta.EntityKindRecurrence,
			raw:   RawRecord{SourceID: "1", Fields: map[string]interface{}{"frequency": "mensal"}},
			field: "startDate",
		},
		{
			name:  "task without title",
			kind:  meta.EntityKindTask,
			raw:   RawRecord{SourceID: "1", Fields: map[string]interface{}{"status": "pending"}},
			field: "title",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Map(tc.raw, tc.kind)
			require.Error(t, err)
			me, ok := AsMappingError(err)
			require.True(t, ok)
			assert.Equal(t, meta.SyncErrorMissingField, me.Code)
			assert.Equal(t, tc.field, me.Field)
		})
	}
}

func TestMapInvalidDate(t *testing.T) {
	for _, value := range []string{"2026-01-05", "32-01-2026", "05/01/2026", "amanhã"} {
		t.Run(value, func(t *testing.T) {
			_, err := Map(RawRecord{
				SourceID: "7",
				Fields:   map[string]interface{}{"status": "novo", "dueDate": value},
			}, meta.EntityKindServiceRequest)

			me, ok := AsMappingError(err)
			require.True(t, ok)
			assert.Equal(t, meta.SyncErrorInvalidDate, me.Code)
			assert.Equal(t, value, me.Value)
		})
	}
}

func TestMapEnums(t *testing.T) {
	entity, err := Map(RawRecord{
		SourceID: "9",
		Fields:   map[string]interface{}{"status": " Em Andamento "},
	}, meta.EntityKindServiceRequest)
	require.NoError(t, err)
	assert.Equal(t, "em_andamento", entity.Payload["status"])

	entity, err = Map(RawRecord{
		SourceID: "t-1",
		Fields:   map[string]interface{}{"title": "Enviar contrato", "status": "Concluída"},
	}, meta.EntityKindTask)
	require.NoError(t, err)
	assert.Equal(t, meta.TaskStatusDone, entity.Payload["status"])

	_, err = Map(RawRecord{
		SourceID: "9",
		Fields:   map[string]interface{}{"status": "arquivado"},
	}, meta.EntityKindServiceRequest)
	me, ok := AsMappingError(err)
	require.True(t, ok)
	assert.Equal(t, meta.SyncErrorInvalidEnum, me.Code)
	assert.Equal(t, "status", me.Field)
}

func TestMapBillingAmount(t *testing.T) {
	testCases := map[string]string{
		"1.234,56": "1234.56",
		"R$ 99,9":  "99.9",
		"150":      "150",
		"150.00":   "150",
	}
	for in, want := range testCases {
		t.Run(in, func(t *testing.T) {
			entity, err := Map(RawRecord{
				SourceID: "b-1",
				Fields:   map[string]interface{}{"status": "faturado", "amount": in},
			}, meta.EntityKindBillingProcess)
			require.NoError(t, err)
			assert.Equal(t, want, entity.Payload["amount"])
		})
	}

	_, err := Map(RawRecord{
		SourceID: "b-2",
		Fields:   map[string]interface{}{"status": "faturado", "amount": "muito"},
	}, meta.EntityKindBillingProcess)
	me, ok := AsMappingError(err)
	require.True(t, ok)
	assert.Equal(t, meta.SyncErrorInvalidValue, me.Code)
}

func TestMapKindMismatch(t *testing.T) {
	_, err := Map(RawRecord{Kind: meta.EntityKindClient, SourceID: "1", Fields: map[string]interface{}{"name": "x"}}, meta.EntityKindTask)
	require.Error(t, err)

	_, err = Map(RawRecord{SourceID: "1"}, "invoice")
	require.Error(t, err)
}

func TestMapBatchCollectsFailures(t *testing.T) {
	raws := []RawRecord{
		{SourceID: "1", Fields: map[string]interface{}{"name": "Cliente A"}},
		{SourceID: "2", Fields: map[string]interface{}{}},
		{SourceID: "3", Fields: map[string]interface{}{"name": "Cliente C", "email": "C@EXAMPLE.COM"}},
	}

	entities, failures := MapBatch(raws, meta.EntityKindClient)
	require.Len(t, entities, 2)
	require.Len(t, failures, 1)
	assert.Equal(t, "2", failures[0].SourceID)
	assert.Equal(t, "name", failures[0].Err.Field)
	assert.Equal(t, "c@example.com", entities[1].Payload["email"])
}

// TestMapDeterminism mapping the same record twice yields identical payloads
func TestMapDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Map is deterministic", prop.ForAll(
		func(sourceID string, day, month int, status string) bool {
			raw := RawRecord{
				SourceID: sourceID,
				Fields: map[string]interface{}{
					"status":  status,
					"dueDate": formatDay(day, month),
				},
			}
			first, err1 := Map(raw, meta.EntityKindServiceRequest)
			second, err2 := Map(raw, meta.EntityKindServiceRequest)
			if err1 != nil || err2 != nil {
				return (err1 == nil) == (err2 == nil) && err1.Error() == err2.Error()
			}
			return assert.ObjectsAreEqual(first, second)
		},
		gen.Identifier(),
		gen.IntRange(1, 28),
		gen.IntRange(1, 12),
		gen.OneConstOf("novo", "em_andamento", "Concluído", "cancelado", "invalid"),
	))

	properties.TestingRun(t)
}

func formatDay(day, month int) string {
	return fmt.Sprintf("%02d-%02d-2026", day, month)
}
