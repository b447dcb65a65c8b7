package realm

import "github.com/adfharrison1/livedb/pkg/query"

type queryBuilder = query.Query
