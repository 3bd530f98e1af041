package adsync

import (
	"sort"
)

type recordIndex struct {
	ids        []string
	records    map[string]PersonRecord
	invalid    []PersonRecord
	duplicates []string
}

// indexRecords keys records by their unique-ID value. The first occurrence of an ID wins.
func indexRecords(records []PersonRecord, uniqueId string) *recordIndex {
	var index = &recordIndex{
		records: make(map[string]PersonRecord, len(records)),
	}
	for _, r := range records {
		var id = r.Value(uniqueId)
		if len(id) == 0 {
			index.invalid = append(index.invalid, r)
			continue
		}
		if _, ok := index.records[id]; ok {
			index.duplicates = append(index.duplicates, id)
			continue
		}
		index.records[id] = r
		index.ids = append(index.ids, id)
	}
	return index
}

// Reconcile splits roster and directory records into New, Matched and Stale
// by exact equality of the uniqueId field. The ID lists are sorted.
func Reconcile(roster []PersonRecord, directory []PersonRecord, uniqueId string) *ReconciliationResult {
	var ri = indexRecords(roster, uniqueId)
	var di = indexRecords(directory, uniqueId)

	var result = &ReconciliationResult{
		NewRecords:     make(map[string]PersonRecord),
		MatchedRecords: make(map[string]PersonRecord),
		StaleRecords:   make(map[string]PersonRecord),
	}
	for _, id := range ri.ids {
		if _, ok := di.records[id]; ok {
			result.Matched = append(result.Matched, id)
			result.MatchedRecords[id] = ri.records[id]
		} else {
			result.New = append(result.New, id)
			result.NewRecords[id] = ri.records[id]
		}
	}
	for _, id := range di.ids {
		if _, ok := ri.records[id]; !ok {
			result.Stale = append(result.Stale, id)
			result.StaleRecords[id] = di.records[id]
		}
	}
	sort.Strings(result.New)
	sort.Strings(result.Matched)
	sort.Strings(result.Stale)

	result.Invalid = append(ri.invalid, di.invalid...)
	var duplicates = MakeSet[string](ri.duplicates)
	for _, id := range di.duplicates {
		duplicates.Add(id)
	}
	result.Duplicates = duplicates.ToArray()
	sort.Strings(result.Duplicates)

	return result
}
