package main

// General API documentation for swaggo. Run `swag init` here to generate
// docs, then build with -tags=swagger to serve them.
//
// @title           comfyd API
// @version         1.0
// @description     Request shim for a locally running ComfyUI engine: accepts workflow jobs, polls the engine for produced media, and delivers files to object storage or inline.
//
// @contact.name   comfyd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
