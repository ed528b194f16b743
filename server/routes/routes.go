/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/numaproj/numastats/server/apis"
	v1 "github.com/numaproj/numastats/server/apis/v1"
)

func Routes(ctx context.Context, r *gin.Engine, stats v1.StatisticsService, cache v1.SnapshotCache, opts ...v1.HandlerOption) {
	handler, err := v1.NewHandler(ctx, stats, cache, opts...)
	if err != nil {
		panic(err)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/livez", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.Use(requestIDMiddleware())
	r.POST("/transactions", handler.PostTransaction)
	r.DELETE("/transactions", handler.DeleteTransactions)
	r.GET("/statistics", handler.GetStatistics)
	v1Routes(r.Group("/api/v1"), handler)
}

// v1Routes registers the debug endpoints.
func v1Routes(r gin.IRouter, handler apis.Handler) {
	r.GET("/sysinfo", handler.GetSysInfo)
	r.GET("/statistics/history", handler.GetStatisticsHistory)
	r.GET("/statistics/buckets", handler.ListBuckets)
}
