package fetcher

import "backoffice-service/service/mapper"

func rawClient(id, name string) mapper.RawRecord {
	return mapper.RawRecord{
		Kind:     "client",
		SourceID: id,
		Fields:   map[string]interface{}{"name": name},
	}
}
