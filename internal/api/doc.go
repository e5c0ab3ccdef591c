// Package api provides REST API handlers for BlockRank
// @title BlockRank API
// @version 1.0
// @description REST API for querying savings-circle blocks, users, transactions and rankings indexed by BlockRank
// @contact.name API Support
// @contact.url https://github.com/blockrank/blockrank
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
