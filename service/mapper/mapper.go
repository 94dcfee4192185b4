/*
 * @module service/mapper/mapper
 * @description Entity Mapper: normalizes raw external records into canonical entities of one of five kinds
 * @architecture Pure functions - no I/O, no clock, no id generation
 * @stateFlow RawRecord -> field validation/coercion -> typed payload -> JSONB payload -> Entity
 * @rules deterministic and side-effect free; identical input always yields an identical payload
 * @dependencies github.com/spf13/cast, github.com/shopspring/decimal, golang.org/x/text (via utils)
 * @refs service/sync_engine/engine.go, service/models/entity.go
 */

package mapper

import (
	"fmt"
	"strings"

	"backoffice-service/service/meta"
	"backoffice-service/service/models"

	"github.com/spf13/cast"
)

// RawRecord untyped record yielded by the external fetcher
type RawRecord struct {
	Kind     string                 `json:"entityKind"`
	SourceID interface{}            `json:"sourceId"`
	Fields   map[string]interface{} `json:"fields"`
}

// Failure a raw record rejected by the mapper
type Failure struct {
	SourceID string
	Err      *MappingError
}

// enum tables: folded input -> canonical value
var (
	serviceRequestStatuses = map[string]string{
		"novo":         "novo",
		"em_andamento": "em_andamento",
		"aguardando":   "aguardando",
		"concluido":    "concluido",
		"cancelado":    "cancelado",
	}
	billingStatuses = map[string]string{
		"pendente":  "pendente",
		"faturado":  "faturado",
		"pago":      "pago",
		"cancelado": "cancelado",
	}
	recurrenceFrequencies = map[string]string{
		"semanal":   "semanal",
		"quinzenal": "quinzenal",
		"mensal":    "mensal",
		"anual":     "anual",
	}
	taskStatuses = map[string]string{
		"pending":   meta.TaskStatusPending,
		"pendente":  meta.TaskStatusPending,
		"done":      meta.TaskStatusDone,
		"concluida": meta.TaskStatusDone,
		"concluido": meta.TaskStatusDone,
	}
)

// Map normalizes raw into an Entity of kind. The returned entity carries no id
// and no timestamps; those are assigned by the reconciliation engine.
func Map(raw RawRecord, kind string) (*models.Entity, error) {
	if !meta.IsValidEntityKind(kind) {
		return nil, InvalidValue("entityKind", kind)
	}
	if raw.Kind != "" && raw.Kind != kind {
		return nil, InvalidValue("entityKind", raw.Kind)
	}

	fields := newFieldReader(raw.Fields)
	sourceID, err := resolveSourceID(raw, fields)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	var providerID string
	switch kind {
	case meta.EntityKindServiceRequest:
		p, err := mapServiceRequest(fields)
		if err != nil {
			return nil, err
		}
		payload, providerID = p, p.ProviderID
	case meta.EntityKindBillingProcess:
		p, err := mapBillingProcess(fields)
		if err != nil {
			return nil, err
		}
		payload = p
	case meta.EntityKindClient:
		p, err := mapClient(fields)
		if err != nil {
			return nil, err
		}
		payload = p
	case meta.EntityKindRecurrence:
		p, err := mapRecurrence(fields)
		if err != nil {
			return nil, err
		}
		payload, providerID = p, p.ProviderID
	case meta.EntityKindTask:
		p, err := mapTask(fields)
		if err != nil {
			return nil, err
		}
		payload, providerID = p, p.ProviderID
	}

	jsonPayload, err := models.ToJSONB(payload)
	if err != nil {
		return nil, InvalidValue("payload", err.Error())
	}

	entity := &models.Entity{
		Kind:     kind,
		SourceID: sourceID,
		Payload:  jsonPayload,
	}
	if providerID != "" {
		entity.ProviderID = &providerID
	}
	return entity, nil
}

// MapBatch maps every record, collecting failures instead of stopping at the first one
func MapBatch(raws []RawRecord, kind string) ([]*models.Entity, []Failure) {
	entities := make([]*models.Entity, 0, len(raws))
	var failures []Failure
	for _, raw := range raws {
		entity, err := Map(raw, kind)
		if err != nil {
			me, ok := AsMappingError(err)
			if !ok {
				me = InvalidValue("record", err.Error())
			}
			failures = append(failures, Failure{SourceID: sourceIDString(raw), Err: me})
			continue
		}
		entities = append(entities, entity)
	}
	return entities, failures
}

func resolveSourceID(raw RawRecord, fields fieldReader) (string, error) {
	v := raw.SourceID
	if v == nil {
		v, _ = fields.raw("sourceId")
	}
	if v == nil {
		return "", MissingField("sourceId")
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", InvalidValue("sourceId", fmt.Sprint(v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", MissingField("sourceId")
	}
	return s, nil
}

func sourceIDString(raw RawRecord) string {
	if raw.SourceID != nil {
		return cast.ToString(raw.SourceID)
	}
	if v, ok := newFieldReader(raw.Fields).raw("sourceId"); ok {
		return cast.ToString(v)
	}
	return ""
}

func mapServiceRequest(f fieldReader) (*models.ServiceRequestPayload, error) {
	var p models.ServiceRequestPayload
	var err error
	if p.Status, err = f.requiredEnum("status", serviceRequestStatuses); err != nil {
		return nil, err
	}
	if p.DueDate, err = f.optionalDate("dueDate"); err != nil {
		return nil, err
	}
	if p.OpenedAt, err = f.optionalDate("openedAt"); err != nil {
		return nil, err
	}
	if p.ClientSourceID, err = f.optionalString("clientSourceId"); err != nil {
		return nil, err
	}
	if p.ProviderID, err = f.optionalString("providerId"); err != nil {
		return nil, err
	}
	if p.Description, err = f.optionalString("description"); err != nil {
		return nil, err
	}
	if p.Priority, err = f.optionalInt("priority"); err != nil {
		return nil, err
	}
	return &p, nil
}

func mapBillingProcess(f fieldReader) (*models.BillingProcessPayload, error) {
	var p models.BillingProcessPayload
	var err error
	if p.Status, err = f.requiredEnum("status", billingStatuses); err != nil {
		return nil, err
	}
	if p.Amount, err = f.requiredDecimal("amount"); err != nil {
		return nil, err
	}
	if p.IssueDate, err = f.optionalDate("issueDate"); err != nil {
		return nil, err
	}
	if p.DueDate, err = f.optionalDate("dueDate"); err != nil {
		return nil, err
	}
	if p.ClientSourceID, err = f.optionalString("clientSourceId"); err != nil {
		return nil, err
	}
	if p.ServiceRequestSourceID, err = f.optionalString("serviceRequestSourceId"); err != nil {
		return nil, err
	}
	return &p, nil
}

func mapClient(f fieldReader) (*models.ClientPayload, error) {
	var p models.ClientPayload
	var err error
	if p.Name, err = f.requiredString("name"); err != nil {
		return nil, err
	}
	if p.Email, err = f.optionalString("email"); err != nil {
		return nil, err
	}
	p.Email = strings.ToLower(p.Email)
	if p.Phone, err = f.optionalString("phone"); err != nil {
		return nil, err
	}
	if p.FiscalID, err = f.optionalString("fiscalId"); err != nil {
		return nil, err
	}
	if p.City, err = f.optionalString("city"); err != nil {
		return nil, err
	}
	return &p, nil
}

func mapRecurrence(f fieldReader) (*models.RecurrencePayload, error) {
	var p models.RecurrencePayload
	var err error
	if p.Frequency, err = f.requiredEnum("frequency", recurrenceFrequencies); err != nil {
		return nil, err
	}
	if p.StartDate, err = f.requiredDate("startDate"); err != nil {
		return nil, err
	}
	if p.EndDate, err = f.optionalDate("endDate"); err != nil {
		return nil, err
	}
	if p.ServiceRequestSourceID, err = f.optionalString("serviceRequestSourceId"); err != nil {
		return nil, err
	}
	if p.ProviderID, err = f.optionalString("providerId"); err != nil {
		return nil, err
	}
	return &p, nil
}

func mapTask(f fieldReader) (*models.TaskPayload, error) {
	var p models.TaskPayload
	var err error
	if p.Title, err = f.requiredString("title"); err != nil {
		return nil, err
	}
	if p.Status, err = f.requiredEnum("status", taskStatuses); err != nil {
		return nil, err
	}
	if p.DueDate, err = f.optionalDate("dueDate"); err != nil {
		return nil, err
	}
	if p.ServiceRequestSourceID, err = f.optionalString("serviceRequestSourceId"); err != nil {
		return nil, err
	}
	if p.ProviderID, err = f.optionalString("providerId"); err != nil {
		return nil, err
	}
	return &p, nil
}
