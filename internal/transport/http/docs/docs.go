// Package docs registers the OpenAPI document served at /openapi.json.
// Keep it in step with the handler annotations under transport/http.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Service and model health",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.HealthResponse"}
                    }
                }
            }
        },
        "/predict": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Predict"],
                "summary": "Classify one photograph",
                "parameters": [
                    {
                        "type": "file",
                        "description": "jpeg, png or webp image",
                        "name": "file",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "number",
                        "default": 0.55,
                        "description": "per-anchor threshold in [0, 1]",
                        "name": "confidence_threshold",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/inference.ClassificationResult"}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/http.APIResponse"}
                    },
                    "413": {
                        "description": "Request Entity Too Large",
                        "schema": {"$ref": "#/definitions/http.APIResponse"}
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {"$ref": "#/definitions/http.APIResponse"}
                    }
                }
            }
        },
        "/predict/batch": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Predict"],
                "summary": "Classify several photographs",
                "parameters": [
                    {
                        "type": "file",
                        "description": "up to 20 images",
                        "name": "files",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "number",
                        "default": 0.55,
                        "description": "per-anchor threshold in [0, 1]",
                        "name": "confidence_threshold",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/predict.BatchResponse"}
                    }
                }
            }
        },
        "/predict/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Predict"],
                "summary": "Recent classification audit records",
                "parameters": [
                    {
                        "type": "integer",
                        "default": 20,
                        "description": "number of records",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/predict.HistoryResponse"}
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/http.APIResponse"}
                    }
                }
            }
        },
        "/predict/labels": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Predict"],
                "summary": "Class labels in model order",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/predict.LabelsResponse"}
                    }
                }
            }
        },
        "/predict/model-info": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Predict"],
                "summary": "Model handle state",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/inference.ModelInfo"}
                    }
                }
            }
        }
    },
    "definitions": {
        "detection.Box": {
            "type": "object",
            "properties": {
                "height": {"type": "number"},
                "width": {"type": "number"},
                "x": {"type": "number"},
                "y": {"type": "number"}
            }
        },
        "detection.ClassAggregate": {
            "type": "object",
            "properties": {
                "anchor_count": {"type": "integer"},
                "bbox": {"$ref": "#/definitions/detection.Box"},
                "class_id": {"type": "integer"},
                "confidence": {"type": "number"},
                "pest_type": {"type": "string"},
                "tta_agreement": {"type": "integer"},
                "tta_total": {"type": "integer"}
            }
        },
        "http.APIResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "model_loaded": {"type": "boolean"},
                "status": {"type": "string", "enum": ["healthy", "degraded"]},
                "system": {"type": "object"},
                "version": {"type": "string"}
            }
        },
        "image.QualityReport": {
            "type": "object",
            "properties": {
                "acceptable": {"type": "boolean"},
                "brightness": {"type": "number"},
                "issues": {"type": "array", "items": {"type": "string"}},
                "resolution": {"type": "array", "items": {"type": "integer"}},
                "sharpness": {"type": "number"},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "inference.ClassificationResult": {
            "type": "object",
            "properties": {
                "best_match": {"$ref": "#/definitions/detection.ClassAggregate"},
                "notes": {"type": "string"},
                "predictions": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/detection.ClassAggregate"}
                },
                "quality": {"$ref": "#/definitions/image.QualityReport"},
                "request_id": {"type": "string"},
                "retake_guidance": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "enum": ["DETECTED", "UNCERTAIN", "OUT_OF_SCOPE"]},
                "status_message": {"type": "string"},
                "success": {"type": "boolean"},
                "total_detections": {"type": "integer"},
                "tta_augmentations": {"type": "integer"}
            }
        },
        "inference.ModelInfo": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "input_shape": {"type": "array", "items": {"type": "integer"}},
                "labels": {"type": "array", "items": {"type": "string"}},
                "labels_path": {"type": "string"},
                "model_loaded": {"type": "boolean"},
                "model_path": {"type": "string"},
                "num_classes": {"type": "integer"},
                "output_shape": {"type": "array", "items": {"type": "integer"}},
                "runtime": {"type": "string"}
            }
        },
        "predict.BatchItem": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "filename": {"type": "string"},
                "result": {"$ref": "#/definitions/inference.ClassificationResult"}
            }
        },
        "predict.BatchResponse": {
            "type": "object",
            "properties": {
                "counts": {"type": "object", "additionalProperties": {"type": "integer"}},
                "results": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/predict.BatchItem"}
                },
                "total": {"type": "integer"}
            }
        },
        "predict.HistoryResponse": {
            "type": "object",
            "properties": {
                "counts": {"type": "object", "additionalProperties": {"type": "integer"}},
                "records": {"type": "array", "items": {"type": "object"}}
            }
        },
        "predict.LabelsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "labels": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "PestScan 服务端 API 文档",
	Description:      "椰子害虫图像分类服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
