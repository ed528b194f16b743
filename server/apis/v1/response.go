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
package v1

// APIResponse is the envelope of the /api/v1 endpoints and of every error.
type APIResponse struct {
	// ErrMessage provides more detailed error information. If API call succeeds, the ErrMessage is nil.
	ErrMessage *string `json:"errMessage,omitempty"`
	// Data is the response body.
	Data interface{} `json:"data"`
}

// NewAPIResponse creates a new APIResponse.
func NewAPIResponse(errMessage *string, data interface{}) APIResponse {
	return APIResponse{
		ErrMessage: errMessage,
		Data:       data,
	}
}

// SysInfo describes the running service.
type SysInfo struct {
	Version      string `json:"version"`
	WindowMillis int64  `json:"windowMillis"`
	NumBuckets   int    `json:"numBuckets"`
	BucketMillis int64  `json:"bucketMillis"`
}
