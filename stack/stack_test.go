package stack

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"hfserverless/lib/service"
	"hfserverless/plan"
	"hfserverless/storage"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageContext(t *testing.T) ImageProps {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inference"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inference", "Dockerfile"), []byte("FROM scratch\n"), 0644))
	return ImageProps{Context: dir, Dockerfile: "inference/Dockerfile"}
}

func synth(t *testing.T, names []service.Name, mutate func(*InferenceStackProps)) (*InferenceStack, map[string]interface{}) {
	d, err := plan.Build("TestStack", names, storage.Default(), plan.DefaultDefaults())
	require.NoError(t, err)
	props := &InferenceStackProps{Deployment: d, Image: imageContext(t)}
	if mutate != nil {
		mutate(props)
	}
	app := awscdk.NewApp(&awscdk.AppProps{Outdir: jsii.String(t.TempDir())})
	st := NewInferenceStack(app, "TestStack", props)
	tmpl := assertions.Template_FromStack(st.Stack, nil)
	return st, *tmpl.ToJSON()
}

func resourcesOfType(tmpl map[string]interface{}, typ string) map[string]map[string]interface{} {
	ret := make(map[string]map[string]interface{})
	resources, _ := tmpl["Resources"].(map[string]interface{})
	for id, r := range resources {
		res := r.(map[string]interface{})
		if res["Type"] == typ {
			props, _ := res["Properties"].(map[string]interface{})
			ret[id] = props
		}
	}
	return ret
}

func imageFunctions(tmpl map[string]interface{}) map[string]map[string]interface{} {
	ret := make(map[string]map[string]interface{})
	for id, props := range resourcesOfType(tmpl, "AWS::Lambda::Function") {
		if props["PackageType"] == "Image" {
			ret[id] = props
		}
	}
	return ret
}

// getAttTargets collects every logical id referenced through Fn::GetAtt below v.
func getAttTargets(v interface{}) []string {
	ret := make([]string, 0)
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			if k == "Fn::GetAtt" {
				if pair, ok := inner.([]interface{}); ok && len(pair) > 0 {
					ret = append(ret, pair[0].(string))
					continue
				}
			}
			ret = append(ret, getAttTargets(inner)...)
		}
	case []interface{}:
		for _, inner := range t {
			ret = append(ret, getAttTargets(inner)...)
		}
	}
	return ret
}

func ref(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m["Ref"].(string)
	return s
}

func TestStack_OneFunctionAndAPIPerService(t *testing.T) {
	for _, names := range [][]service.Name{{}, {"sentiment"}, {"ner", "sentiment", "summarize"}} {
		st, tmpl := synth(t, names, nil)
		assert.Len(t, imageFunctions(tmpl), len(names))
		assert.Len(t, resourcesOfType(tmpl, "AWS::ApiGateway::RestApi"), len(names))
		assert.Len(t, resourcesOfType(tmpl, "AWS::EFS::FileSystem"), 1)
		assert.Len(t, resourcesOfType(tmpl, "AWS::EFS::AccessPoint"), 1)
		assert.Len(t, resourcesOfType(tmpl, "AWS::EC2::VPC"), 1)
		assert.Equal(t, names, st.Names())
		for _, n := range names {
			svc, ok := st.Service(n)
			assert.True(t, ok)
			assert.NotNil(t, svc.Function)
			assert.NotNil(t, svc.API)
		}
	}
}

func TestStack_FunctionProperties(t *testing.T) {
	_, tmpl := synth(t, []service.Name{"ner", "sentiment"}, nil)
	commands := make([]string, 0)
	for _, props := range imageFunctions(tmpl) {
		assert.EqualValues(t, 8096, props["MemorySize"])
		assert.EqualValues(t, 600, props["Timeout"])
		env := props["Environment"].(map[string]interface{})["Variables"].(map[string]interface{})
		assert.Equal(t, "/mnt/hf_models_cache", env["TRANSFORMERS_CACHE"])

		fsConfigs := props["FileSystemConfigs"].([]interface{})
		require.Len(t, fsConfigs, 1)
		assert.Equal(t, "/mnt/hf_models_cache", fsConfigs[0].(map[string]interface{})["LocalMountPath"])
		assert.NotNil(t, props["VpcConfig"])

		cmd := props["ImageConfig"].(map[string]interface{})["Command"].([]interface{})
		require.Len(t, cmd, 1)
		commands = append(commands, cmd[0].(string))
	}
	sort.Strings(commands)
	assert.Equal(t, []string{"ner", "sentiment"}, commands)
}

func TestStack_SharedCache(t *testing.T) {
	st, _ := synth(t, []service.Name{"sentiment"}, nil)
	tmpl := assertions.Template_FromStack(st.Stack, nil)
	tmpl.HasResourceProperties(jsii.String("AWS::EFS::AccessPoint"), map[string]interface{}{
		"PosixUser": map[string]interface{}{"Uid": "1001", "Gid": "1001"},
		"RootDirectory": map[string]interface{}{
			"Path": "/export/models",
			"CreationInfo": map[string]interface{}{
				"OwnerUid":    "1001",
				"OwnerGid":    "1001",
				"Permissions": "750",
			},
		},
	})
	tmpl.HasResource(jsii.String("AWS::EFS::FileSystem"), map[string]interface{}{
		"DeletionPolicy":      "Delete",
		"UpdateReplacePolicy": "Delete",
	})
}

func TestStack_RetainedCache(t *testing.T) {
	d, err := plan.Build("TestStack", []service.Name{"sentiment"}, func() storage.SharedCache {
		c := storage.Default()
		c.Destroy = false
		return c
	}(), plan.DefaultDefaults())
	require.NoError(t, err)
	app := awscdk.NewApp(&awscdk.AppProps{Outdir: jsii.String(t.TempDir())})
	st := NewInferenceStack(app, "TestStack", &InferenceStackProps{Deployment: d, Image: imageContext(t)})
	assertions.Template_FromStack(st.Stack, nil).HasResource(jsii.String("AWS::EFS::FileSystem"), map[string]interface{}{
		"DeletionPolicy": "Retain",
	})
}

func TestStack_RoutesBindToTheirFunction(t *testing.T) {
	names := []service.Name{"ner", "sentiment"}
	_, tmpl := synth(t, names, nil)

	functions := imageFunctions(tmpl)
	commandOf := func(logicalID string) string {
		props, ok := functions[logicalID]
		require.True(t, ok, "%s is not an image function", logicalID)
		return props["ImageConfig"].(map[string]interface{})["Command"].([]interface{})[0].(string)
	}

	pathOf := make(map[string]string)
	for id, props := range resourcesOfType(tmpl, "AWS::ApiGateway::Resource") {
		pathOf[id] = props["PathPart"].(string)
	}
	assert.Len(t, pathOf, len(names))

	// path -> http method -> function logical id
	bindings := make(map[string]map[string]string)
	for _, props := range resourcesOfType(tmpl, "AWS::ApiGateway::Method") {
		path, ok := pathOf[ref(props["ResourceId"])]
		if !ok {
			continue
		}
		method := props["HttpMethod"].(string)
		if method == "OPTIONS" {
			continue
		}
		integration := props["Integration"].(map[string]interface{})
		assert.Equal(t, "AWS_PROXY", integration["Type"])
		targets := getAttTargets(integration["Uri"])
		require.Len(t, targets, 1)
		if bindings[path] == nil {
			bindings[path] = make(map[string]string)
		}
		bindings[path][method] = targets[0]
	}

	for _, n := range names {
		methods := bindings[n.Value()]
		require.Len(t, methods, 2, "service %s", n)
		assert.Equal(t, methods["GET"], methods["POST"])
		assert.Equal(t, n.Value(), commandOf(methods["GET"]))
	}
}

func TestStack_CORSAndRootMethod(t *testing.T) {
	st, tmpl := synth(t, []service.Name{"sentiment"}, nil)
	tpl := assertions.Template_FromStack(st.Stack, nil)
	tpl.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]interface{}{
		"HttpMethod": "ANY",
		"Integration": map[string]interface{}{"Type": "MOCK"},
	})

	preflights := 0
	for _, props := range resourcesOfType(tmpl, "AWS::ApiGateway::Method") {
		if props["HttpMethod"] != "OPTIONS" {
			continue
		}
		preflights++
		integration := props["Integration"].(map[string]interface{})
		responses := integration["IntegrationResponses"].([]interface{})
		require.NotEmpty(t, responses)
		params := responses[0].(map[string]interface{})["ResponseParameters"].(map[string]interface{})
		assert.Equal(t, "'*'", params["method.response.header.Access-Control-Allow-Origin"])
		assert.Equal(t, "'OPTIONS,GET,PUT,POST,DELETE,PATCH,HEAD'", params["method.response.header.Access-Control-Allow-Methods"])
	}
	// one preflight on the root and one on /sentiment
	assert.Equal(t, 2, preflights)

	tpl.HasResourceProperties(jsii.String("AWS::ApiGateway::RestApi"), map[string]interface{}{
		"Name":        "sentiment Service",
		"Description": "This service serves sentiment.",
	})
	tpl.HasOutput(jsii.String("*"), map[string]interface{}{
		"Description": "Endpoint of the sentiment service",
	})
}

func TestStack_ModelBucketAndEndpointGrants(t *testing.T) {
	st, _ := synth(t, []service.Name{"sentiment"}, func(p *InferenceStackProps) {
		p.ModelBucket = mo.Some("model-hub")
		p.SagemakerEndpoint = mo.Some("hf-sst2")
	})
	tpl := assertions.Template_FromStack(st.Stack, nil)
	tpl.HasResourceProperties(jsii.String("AWS::IAM::Policy"), map[string]interface{}{
		"PolicyDocument": map[string]interface{}{
			"Statement": assertions.Match_ArrayWith(&[]interface{}{
				assertions.Match_ObjectLike(&map[string]interface{}{
					"Action": assertions.Match_ArrayWith(&[]interface{}{"s3:GetObject*"}),
					"Effect": "Allow",
				}),
				assertions.Match_ObjectLike(&map[string]interface{}{
					"Action": "sagemaker:InvokeEndpoint",
					"Effect": "Allow",
				}),
			}),
		},
	})
}
