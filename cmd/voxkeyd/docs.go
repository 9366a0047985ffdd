package main

// General API documentation for swaggo. The served description lives in
// internal/httpapi/openapi.json; build with -tags=swagger to mount the UI.
//
// @title           voxkey API
// @version         1.0
// @description     Loopback HTTP API for local speech-model downloads, selection and deletion.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
