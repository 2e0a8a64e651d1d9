package domain

// Paginate returns the page-th fixed-size slice of a sorted result set, pages
// numbered from 1. Out-of-range pages yield an empty slice; the serving layer
// turns that into the default record. Non-positive page or perPage returns
// the input unchanged (pagination not requested).
func Paginate(records []CountRecord, page, perPage int) []CountRecord {
	if page <= 0 || perPage <= 0 {
		return records
	}
	lo := (page - 1) * perPage
	if lo >= len(records) {
		return nil
	}
	hi := lo + perPage
	if hi > len(records) {
		hi = len(records)
	}
	return records[lo:hi]
}
